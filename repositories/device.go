//go:generate go run go.uber.org/mock/mockgen -source=device.go -destination=../mocks/mock_device_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"time"

	"github.com/dgraph-io/badger/v4"

	"chat-relay/domain"
)

type IDeviceRepository interface {
	Register(userID string, platform domain.Platform, token string) (domain.Device, error)
	TokensFor(userID string, platform domain.Platform) ([]string, error)
}

// DeviceRepository stores push-capable endpoints under
// "device:{user}:{platform}:{token}". The key is the identity, so a
// re-registration is a plain overwrite refreshing last_seen_at.
type DeviceRepository struct {
	db *badger.DB
}

func NewDeviceRepository(db *badger.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

func deviceKey(userID string, platform domain.Platform, token string) []byte {
	return []byte("device:" + userID + ":" + string(platform) + ":" + token)
}

// Register upserts the device idempotently.
func (d *DeviceRepository) Register(userID string, platform domain.Platform, token string) (domain.Device, error) {
	device := domain.Device{
		UserID:     userID,
		Platform:   platform,
		Token:      token,
		LastSeenAt: time.Now().UTC(),
	}
	value, err := json.Marshal(device)
	if err != nil {
		return domain.Device{}, err
	}
	err = d.db.Update(func(txn *badger.Txn) error {
		return txn.Set(deviceKey(userID, platform, token), value)
	})
	return device, err
}

// TokensFor lists registered tokens, optionally narrowed to one platform.
// An unknown user simply has no tokens.
func (d *DeviceRepository) TokensFor(userID string, platform domain.Platform) ([]string, error) {
	prefix := []byte("device:" + userID + ":")
	if platform != "" {
		prefix = []byte("device:" + userID + ":" + string(platform) + ":")
	}
	var tokens []string
	err := d.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var device domain.Device
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &device)
			})
			if err != nil {
				return err
			}
			tokens = append(tokens, device.Token)
		}
		return nil
	})
	return tokens, err
}
