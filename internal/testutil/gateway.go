package testutil

import (
	"bytes"
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/wechatpay-apiv3/wechatpay-go/utils"
)

// WechatAPIv3Key 测试用 APIv3 密钥
const WechatAPIv3Key = "0123456789abcdef0123456789abcdef"

// ChannelKeys 测试用的支付渠道密钥。同一把私钥同时充当平台私钥和应用私钥。
type ChannelKeys struct {
	Private *rsa.PrivateKey
	// PublicKey 支付宝公钥，base64 PKIX，不带头尾
	PublicKey string
	// AppPrivateKey 应用私钥，base64 PKCS1，不带头尾
	AppPrivateKey string
	// Certificate 微信支付平台证书 PEM
	Certificate string
	Serial      string
}

// NewChannelKeys 生成 RSA 密钥与自签名平台证书
func NewChannelKeys(t *testing.T) *ChannelKeys {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}

	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("Failed to marshal public key: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: "Tenpay.com Root CA"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("Failed to create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("Failed to parse certificate: %v", err)
	}

	return &ChannelKeys{
		Private:       key,
		PublicKey:     base64.StdEncoding.EncodeToString(pub),
		AppPrivateKey: base64.StdEncoding.EncodeToString(x509.MarshalPKCS1PrivateKey(key)),
		Certificate:   string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})),
		Serial:        utils.GetCertificateSerialNumber(*cert),
	}
}

// Sign SHA256WithRSA 签名，base64 编码
func (k *ChannelKeys) Sign(t *testing.T, message string) string {
	t.Helper()

	digest := sha256.Sum256([]byte(message))
	sig, err := rsa.SignPKCS1v15(rand.Reader, k.Private, crypto.SHA256, digest[:])
	if err != nil {
		t.Fatalf("Failed to sign: %v", err)
	}
	return base64.StdEncoding.EncodeToString(sig)
}

// AlipaySignContent 待签名串：去掉 sign、sign_type 与空值后按键名排序
func AlipaySignContent(form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		if k == "sign" || k == "sign_type" || form.Get(k) == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+form.Get(k))
	}
	return strings.Join(pairs, "&")
}

// SignAlipayForm 以 RSA2 签名异步通知表单
func (k *ChannelKeys) SignAlipayForm(t *testing.T, form url.Values) url.Values {
	t.Helper()

	form.Set("sign_type", "RSA2")
	form.Set("sign", k.Sign(t, AlipaySignContent(form)))
	return form
}

// WechatNotifyBody 加密交易并封装成 APIv3 回调报文
func WechatNotifyBody(t *testing.T, eventType string, tx map[string]interface{}) []byte {
	t.Helper()

	plain, err := json.Marshal(tx)
	if err != nil {
		t.Fatalf("Failed to marshal transaction: %v", err)
	}

	block, err := aes.NewCipher([]byte(WechatAPIv3Key))
	if err != nil {
		t.Fatalf("Failed to create cipher: %v", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		t.Fatalf("Failed to create gcm: %v", err)
	}

	nonce, ad := "abcdefghijkl", "transaction"
	body, err := json.Marshal(map[string]interface{}{
		"id":            "evt-1",
		"event_type":    eventType,
		"resource_type": "encrypt-resource",
		"summary":       "支付成功",
		"resource": map[string]string{
			"algorithm":       "AEAD_AES_256_GCM",
			"ciphertext":      base64.StdEncoding.EncodeToString(gcm.Seal(nil, []byte(nonce), plain, []byte(ad))),
			"associated_data": ad,
			"nonce":           nonce,
			"original_type":   "transaction",
		},
	})
	if err != nil {
		t.Fatalf("Failed to marshal notification: %v", err)
	}
	return body
}

// WechatNotifyRequest 带签名头的回调请求，签名串为 时间戳\n随机串\n报文\n
func (k *ChannelKeys) WechatNotifyRequest(t *testing.T, target string, body []byte, at time.Time) *http.Request {
	t.Helper()

	ts := strconv.FormatInt(at.Unix(), 10)
	nonce := "n0nce"

	req := httptest.NewRequest("POST", target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Request-ID", "req-"+ts)
	req.Header.Set("Wechatpay-Serial", k.Serial)
	req.Header.Set("Wechatpay-Timestamp", ts)
	req.Header.Set("Wechatpay-Nonce", nonce)
	req.Header.Set("Wechatpay-Signature", k.Sign(t, ts+"\n"+nonce+"\n"+string(body)+"\n"))
	return req
}
