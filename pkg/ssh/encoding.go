package ssh

import (
	"bytes"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/transform"
)

// 可按名称指定的设备输出编码
var namedEncodings = map[string]encoding.Encoding{
	"gb18030": simplifiedchinese.GB18030,
	"gbk":     simplifiedchinese.GBK,
	"big5":    traditionalchinese.Big5,
	"latin1":  charmap.ISO8859_1,
	"cp1252":  charmap.Windows1252,
}

// 未指定编码时依次尝试
var fallbackEncodings = []encoding.Encoding{
	simplifiedchinese.GB18030,
	traditionalchinese.Big5,
	charmap.Windows1252,
	charmap.ISO8859_1,
}

// DecodeOutput 将设备输出转为 UTF-8
// preferred 为空或 "utf-8" 时先校验 UTF-8，失败再按常见编码探测
func DecodeOutput(b []byte, preferred string) string {
	if len(b) == 0 {
		return ""
	}
	name := strings.ToLower(strings.TrimSpace(preferred))
	if enc, ok := namedEncodings[name]; ok {
		if s, ok := tryDecode(enc, b); ok {
			return s
		}
	}
	if utf8.Valid(b) {
		return string(b)
	}
	for _, enc := range fallbackEncodings {
		if s, ok := tryDecode(enc, b); ok {
			return s
		}
	}
	return string(b)
}

func tryDecode(enc encoding.Encoding, b []byte) (string, bool) {
	reader := transform.NewReader(bytes.NewReader(b), enc.NewDecoder())
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return "", false
	}
	if utf8.Valid(decoded) {
		return string(decoded), true
	}
	return "", false
}
