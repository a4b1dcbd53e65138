package bitunix

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// 中文说明：
// Bitunix 的双重 SHA256 签名是与交易所的线上契约，拼接顺序不可更改：
//   digest = SHA256(nonce + timestamp + apiKey + payload)
//   sign   = SHA256(digest + secretKey)
// GET 请求的 payload 为查询参数按键名 ASCII 升序后 key+value 顺次拼接
// （无任何分隔符），POST 请求的 payload 为压缩 JSON 字符串。

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// signPayload 计算两段式签名。
func signPayload(apiKey, secretKey, nonce, timestamp, payload string) string {
	digest := sha256Hex(nonce + timestamp + apiKey + payload)
	return sha256Hex(digest + secretKey)
}

// canonicalQuery 将查询参数规范化为签名输入。
func canonicalQuery(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(params[k])
	}
	return b.String()
}

// authHeaders 构造一次签名请求所需的全部请求头。
func authHeaders(apiKey, secretKey, nonce, timestamp, payload string) map[string]string {
	return map[string]string{
		"api-key":      apiKey,
		"sign":         signPayload(apiKey, secretKey, nonce, timestamp, payload),
		"nonce":        nonce,
		"timestamp":    timestamp,
		"language":     "en-US",
		"Content-Type": "application/json",
	}
}
