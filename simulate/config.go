package simulate

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config simulate.yaml 配置结构
type Config struct {
	// Listen 监听地址，端口为 0 时随机分配
	Listen      string `mapstructure:"listen"`
	IdleSeconds int    `mapstructure:"idle_seconds"`
	MaxConn     int    `mapstructure:"max_conn"`
	// Password 登录密码，所有设备共用
	Password string `mapstructure:"password"`
	// HostKeyPath 为空时每次启动生成临时 host key
	HostKeyPath string `mapstructure:"host_key_path"`
	// OutputDir 未内置的命令按 <output_dir>/<device>/<cmd>.txt 返回
	OutputDir string `mapstructure:"output_dir"`
	// Devices 按登录用户名选择设备，未匹配时使用 default
	Devices map[string]DeviceConfig `mapstructure:"devices"`
}

// DeviceConfig 单台模拟设备的初始状态
type DeviceConfig struct {
	Hostname       string   `mapstructure:"hostname"`
	EnablePassword string   `mapstructure:"enable_password"`
	Images         []string `mapstructure:"images"`
	Primary        string   `mapstructure:"primary"`
	Backup         string   `mapstructure:"backup"`
	NextBoot       string   `mapstructure:"next_boot"`
	// Flash /intflash 下已有的文件
	Flash []string `mapstructure:"flash"`
	// Archives 镜像包到解压版本的映射；未列出的按去掉扩展名处理
	Archives map[string]string `mapstructure:"archives"`
	// Invalid 设备拒绝的镜像包
	Invalid []string `mapstructure:"invalid"`
	// AddDelay software add 解压耗时
	AddDelay time.Duration `mapstructure:"add_delay"`
	// DownTime reset 后不可登录的时长
	DownTime time.Duration `mapstructure:"down_time"`
}

// DefaultDeviceName 未匹配用户名时使用的设备
const DefaultDeviceName = "default"

// LoadConfig 读取 simulate.yaml
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)
	v.SetDefault("listen", "127.0.0.1:2222")
	v.SetDefault("password", "nova")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read simulate config: %w", err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal simulate config: %w", err)
	}
	return &cfg, nil
}
