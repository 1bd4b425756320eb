package ssh

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
)

// Method 认证方式名称（与 RFC 4252 中的方法名一致）
type Method string

const (
	MethodNone                Method = "none"
	MethodPublicKey           Method = "publickey"
	MethodPassword            Method = "password"
	MethodKeyboardInteractive Method = "keyboard-interactive"
)

// DefaultAuthOrder 默认认证偏好顺序
var DefaultAuthOrder = []Method{MethodPublicKey, MethodPassword, MethodKeyboardInteractive}

// 老旧网络设备常用的算法集合，连接前再剔除禁用项
var (
	kexAlgorithms = []string{
		"curve25519-sha256",
		"curve25519-sha256@libssh.org",
		"ecdh-sha2-nistp256",
		"ecdh-sha2-nistp384",
		"ecdh-sha2-nistp521",
		"diffie-hellman-group14-sha256",
		"diffie-hellman-group16-sha512",
		"diffie-hellman-group-exchange-sha256",
		"diffie-hellman-group14-sha1",
		"diffie-hellman-group1-sha1",
		"diffie-hellman-group-exchange-sha1",
	}
	cipherAlgorithms = []string{
		"aes128-ctr",
		"aes192-ctr",
		"aes256-ctr",
		"aes128-gcm@openssh.com",
		"aes256-gcm@openssh.com",
		"chacha20-poly1305@openssh.com",
		"aes128-cbc",
		"aes192-cbc",
		"aes256-cbc",
		"3des-cbc",
	}
	macAlgorithms = []string{
		"hmac-sha2-256-etm@openssh.com",
		"hmac-sha2-512-etm@openssh.com",
		"hmac-sha2-256",
		"hmac-sha2-512",
		"hmac-sha1",
		"hmac-sha1-96",
	}
	hostKeyAlgorithms = []string{
		"ssh-ed25519",
		"rsa-sha2-256",
		"rsa-sha2-512",
		"ssh-rsa",
		"ecdsa-sha2-nistp256",
		"ecdsa-sha2-nistp384",
		"ecdsa-sha2-nistp521",
	}
)

// DefaultDisabledKex 无条件禁用的弱密钥交换算法
var DefaultDisabledKex = []string{"diffie-hellman-group1-sha1", "diffie-hellman-group14-sha1"}

// DefaultDisabledMACs 无条件禁用的弱 MAC 算法
var DefaultDisabledMACs = []string{"hmac-sha1"}

// ParseMethods 解析配置中的认证方式列表，保持顺序并去重
func ParseMethods(names []string) ([]Method, error) {
	if len(names) == 0 {
		return append([]Method(nil), DefaultAuthOrder...), nil
	}
	seen := make(map[Method]struct{}, len(names))
	out := make([]Method, 0, len(names))
	for _, n := range names {
		m := Method(strings.ToLower(strings.TrimSpace(n)))
		switch m {
		case MethodPublicKey, MethodPassword, MethodKeyboardInteractive:
		default:
			return nil, fmt.Errorf("unsupported auth method %q", n)
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out, nil
}

// filterAlgorithms 从候选列表中剔除禁用项（大小写不敏感）
func filterAlgorithms(candidates, disabled []string) []string {
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		blocked := false
		for _, d := range disabled {
			if strings.EqualFold(strings.TrimSpace(d), c) {
				blocked = true
				break
			}
		}
		if !blocked {
			out = append(out, c)
		}
	}
	return out
}

// algorithmConfig 构建握手算法配置
func algorithmConfig(cfg *Config) ssh.Config {
	return ssh.Config{
		KeyExchanges: filterAlgorithms(kexAlgorithms, cfg.DisabledKex),
		Ciphers:      cipherAlgorithms,
		MACs:         filterAlgorithms(macAlgorithms, cfg.DisabledMACs),
	}
}

// negotiation 记录一次握手中实际尝试过的认证方式
// 库在发送任何凭据前先以 none 方式探测服务端支持的方法集合，
// 之后只会按顺序尝试服务端声明支持、且尚未尝试过的方法
type negotiation struct {
	mu       sync.Mutex
	attempts []Method
}

func (n *negotiation) record(m Method) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, a := range n.attempts {
		if a == m {
			return
		}
	}
	n.attempts = append(n.attempts, m)
}

func (n *negotiation) Attempts() []Method {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Method(nil), n.attempts...)
}

// authPlan 按偏好顺序构建认证方法
func authPlan(info *ConnectionInfo, order []Method, keyBits int, neg *negotiation, log *logrus.Entry) []ssh.AuthMethod {
	methods := make([]ssh.AuthMethod, 0, len(order))
	for _, m := range order {
		switch m {
		case MethodPublicKey:
			methods = append(methods, ssh.PublicKeysCallback(func() ([]ssh.Signer, error) {
				neg.record(MethodPublicKey)
				log.Info("Attempting public key authentication")
				// 临时生成的密钥不会被设备接受，仅用于兼容要求先尝试公钥的设备
				signer, err := ephemeralSigner(keyBits)
				if err != nil {
					log.WithError(err).Warn("Ephemeral key generation failed, skipping public key")
					return nil, nil
				}
				return []ssh.Signer{signer}, nil
			}))
		case MethodPassword:
			methods = append(methods, ssh.PasswordCallback(func() (string, error) {
				neg.record(MethodPassword)
				log.Info("Attempting password authentication")
				return info.Password, nil
			}))
		case MethodKeyboardInteractive:
			methods = append(methods, ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
				neg.record(MethodKeyboardInteractive)
				log.Info("Attempting keyboard-interactive authentication")
				// 对所有提示统一使用密码响应
				answers := make([]string, len(questions))
				for i := range questions {
					answers[i] = info.Password
				}
				return answers, nil
			}))
		}
	}
	return methods
}

func ephemeralSigner(bits int) (ssh.Signer, error) {
	if bits <= 0 {
		bits = 2048
	}
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, err
	}
	return ssh.NewSignerFromKey(key)
}
