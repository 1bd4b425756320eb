package util

import (
	"bytes"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// LookupCharset 按名称返回设备输出使用的字符集，未知名称回退为 UTF-8
func LookupCharset(name string) encoding.Encoding {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "gbk":
		return simplifiedchinese.GBK
	case "gb18030":
		return simplifiedchinese.GB18030
	case "big5":
		return traditionalchinese.Big5
	case "latin1", "iso-8859-1":
		return charmap.ISO8859_1
	case "windows-1252", "cp1252":
		return charmap.Windows1252
	default:
		return unicode.UTF8
	}
}

// NewDecodingReader 包装原始字节流，按字符集流式解码
// 非法字节替换为 U+FFFD，跨读取边界的多字节字符由 transform 保留到下一次读取
func NewDecodingReader(r io.Reader, charset string) io.Reader {
	return transform.NewReader(r, LookupCharset(charset).NewDecoder())
}

// EnsureUTF8Bytes 尝试用常见编码解码非 UTF-8 字节
// 已是合法 UTF-8 时原样返回；全部失败时替换非法字节
func EnsureUTF8Bytes(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	if utf8.Valid(b) {
		return string(b)
	}
	encs := []encoding.Encoding{
		simplifiedchinese.GB18030,
		simplifiedchinese.GBK,
		traditionalchinese.Big5,
		charmap.Windows1252,
	}
	for _, enc := range encs {
		if s, ok := tryDecode(enc, b); ok {
			return s
		}
	}
	return strings.ToValidUTF8(string(b), "�")
}

// EnsureUTF8 对可能乱码的字符串做 UTF-8 规范化
func EnsureUTF8(s string) string {
	return EnsureUTF8Bytes([]byte(s))
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
