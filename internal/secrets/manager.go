package secrets

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"rating-service/internal/config"
	"rating-service/internal/util"

	"github.com/aws/aws-sdk-go-v2/service/kms"
	"go.uber.org/zap"
)

var (
	ErrDecryptionFailed = errors.New("decryption failed")
	ErrNoPepper         = errors.New("fingerprint pepper not configured")
)

// Decrypter is the slice of the KMS API used to unwrap secrets.
type Decrypter interface {
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

type SecretsManager struct {
	kmsClient Decrypter
	config    *config.Config
	timeout   time.Duration
}

func NewSecretsManager(cfg *config.Config, kmsClient Decrypter) *SecretsManager {
	return &SecretsManager{
		kmsClient: kmsClient,
		config:    cfg,
		timeout:   10 * time.Second,
	}
}

// FingerprintPepper returns the key mixed into identity tokens. With KMS
// enabled the configured ciphertext is decrypted; otherwise the plaintext
// pepper is used. Production refuses to run without a pepper.
func (sm *SecretsManager) FingerprintPepper(ctx context.Context) (string, error) {
	if sm.config.KMS.Enabled {
		return sm.decryptPepper(ctx, sm.config.Fingerprint.PepperCiphertext)
	}

	pepper := sm.config.Fingerprint.Pepper
	if pepper == "" {
		if sm.config.IsProduction() {
			return "", ErrNoPepper
		}
		util.Warn("FINGERPRINT_PEPPER not set, identity tokens are unkeyed")
	}
	return pepper, nil
}

func (sm *SecretsManager) decryptPepper(ctx context.Context, ciphertext string) (string, error) {
	if sm.kmsClient == nil {
		return "", fmt.Errorf("%w: kms client not initialized", ErrDecryptionFailed)
	}

	blob, err := base64.StdEncoding.DecodeString(strings.TrimSpace(ciphertext))
	if err != nil {
		return "", fmt.Errorf("%w: invalid ciphertext format", ErrDecryptionFailed)
	}

	ctx, cancel := context.WithTimeout(ctx, sm.timeout)
	defer cancel()

	result, err := sm.kmsClient.Decrypt(ctx, &kms.DecryptInput{CiphertextBlob: blob})
	if err != nil {
		return "", fmt.Errorf("%w: failed to decrypt pepper: %v", ErrDecryptionFailed, err)
	}
	if len(result.Plaintext) == 0 {
		return "", ErrNoPepper
	}

	keyID := ""
	if result.KeyId != nil {
		keyID = *result.KeyId
	}
	util.Info("Fingerprint pepper decrypted via KMS", zap.String("key_id", keyID))

	return string(result.Plaintext), nil
}
