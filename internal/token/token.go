// Package token は署名付きJWTベアラートークンの発行と検証を提供する。
// トークンはステートレスであり、サーバー側には保存しない。
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTTL はTTL未指定時のトークン有効期間。
const DefaultTTL = 30 * time.Minute

// 検証エラー。APIの境界ではすべて401に集約される。
var (
	ErrMalformed        = errors.New("token is malformed")
	ErrExpired          = errors.New("token is expired")
	ErrInvalidSignature = errors.New("token signature is invalid")
)

// ErrEmptySubject はsubjectが空のトークンを発行しようとした場合に返る。
var ErrEmptySubject = errors.New("token subject is required")

var signingMethods = map[string]jwt.SigningMethod{
	"HS256": jwt.SigningMethodHS256,
	"HS384": jwt.SigningMethodHS384,
	"HS512": jwt.SigningMethodHS512,
}

// Config はトークンサービスの設定。
// プロセス設定から明示的に構築して渡す。
type Config struct {
	Secret     []byte
	Algorithm  string        // HS256 / HS384 / HS512。空の場合はHS256
	DefaultTTL time.Duration // 0以下の場合はDefaultTTL
}

// Claims はトークンに埋め込むクレーム。subにユーザーのメールアドレスを持つ。
type Claims struct {
	jwt.RegisteredClaims
}

// Service はトークンの発行と検証を行う。
// 共有可変状態を持たないため、複数goroutineから同時に利用できる。
type Service struct {
	secret     []byte
	method     jwt.SigningMethod
	defaultTTL time.Duration
	now        func() time.Time
}

// NewService はServiceを生成する。
// 秘密鍵が空、または未対応のアルゴリズムが指定された場合はエラーを返す。
func NewService(cfg Config) (*Service, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token secret is required")
	}

	alg := cfg.Algorithm
	if alg == "" {
		alg = "HS256"
	}
	method, ok := signingMethods[alg]
	if !ok {
		return nil, fmt.Errorf("unsupported signing algorithm: %s", alg)
	}

	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Service{
		secret:     cfg.Secret,
		method:     method,
		defaultTTL: ttl,
		now:        time.Now,
	}, nil
}

// DefaultTTL はこのサービスのデフォルト有効期間を返す。
func (s *Service) DefaultTTL() time.Duration {
	return s.defaultTTL
}

// Issue はsubjectを持ち、現在時刻+ttlで失効するトークンを発行する。
// ttlが0の場合は発行時点で失効済みのトークンになる。
func (s *Service) Issue(subject string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", ErrEmptySubject
	}

	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expiresAt(now, ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// expiresAt はexpクレームに入れる失効時刻を返す。
// expは秒精度に切り捨てられるため、ttl>0の場合は次の秒に切り上げて
// 発行直後に失効しないようにする。
func expiresAt(now time.Time, ttl time.Duration) time.Time {
	exp := now.Add(ttl)
	if ttl <= 0 {
		return exp
	}
	if truncated := exp.Truncate(time.Second); !truncated.Equal(exp) {
		return truncated.Add(time.Second)
	}
	return exp
}

// IssueDefault はデフォルト有効期間でトークンを発行する。
func (s *Service) IssueDefault(subject string) (string, error) {
	return s.Issue(subject, s.defaultTTL)
}

// Validate は署名と有効期限を検証し、subjectを返す。
// 失敗時はErrMalformed、ErrExpired、ErrInvalidSignatureのいずれかを返す。
func (s *Service) Validate(tokenString string) (string, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", classify(err)
	}

	if claims.Subject == "" {
		return "", ErrMalformed
	}

	return claims.Subject, nil
}

// classify はjwtライブラリのエラーを本パッケージのエラーに変換する。
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
