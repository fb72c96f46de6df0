package address

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// addressFields 按顺序探测的地址字段。
var addressFields = []string{"address", "shipping_address", "delivery_address", "addr", "location"}

// ExtractAddress 从任意结构的载荷中取出可比较的地址文本。
// 对象载荷依次探测 addressFields，都不存在时序列化整个对象；
// 文本载荷原样使用。
func ExtractAddress(body any) string {
	switch v := body.(type) {
	case nil:
		return ""
	case string:
		return v
	case map[string]any:
		for _, field := range addressFields {
			if value, ok := v[field]; ok {
				return stringify(value)
			}
		}
	}
	return stringify(body)
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprint(value)
	}
	return string(encoded)
}

// Similar 去除空白并忽略大小写后，相等或互相包含即视为同一地址。
// 空串被任何文本包含，因此总是匹配。
func Similar(a, b string) bool {
	ca, cb := canonical(a), canonical(b)
	return ca == cb || strings.Contains(ca, cb) || strings.Contains(cb, ca)
}

func canonical(s string) string {
	return strings.ToLower(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s))
}
