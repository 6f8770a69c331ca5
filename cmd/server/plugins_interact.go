package main

// 引入交互平台插件，触发 init() 完成注册
import (
	_ "github.com/vspimagectl/vspimagectl/addone/interact/platforms/avaya_vsp"
)
