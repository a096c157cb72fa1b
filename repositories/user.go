package repositories

import (
	"chathub/domain"
	"chathub/errors"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IUserRepository interface {
	CreateUser(email, passwordHash string) (string, error)
	Credentials(email string) (uid, passwordHash string, err error)
	GetUser(uid string) (domain.User, error)
	ListUsers() ([]domain.User, error)
	UpdateChats(uid string, mutate func(chats []domain.RoomID) []domain.RoomID) error
}

// UserRepository persists users in BadgerDB under "user:{uid}" with a
// secondary index "email:{email}" -> uid enforcing email uniqueness.
type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) *UserRepository {
	return &UserRepository{db: db}
}

type userRecord struct {
	UID          string
	Email        string
	PasswordHash string
	CreatedAt    int64
	Chats        []string
}

func userKey(uid string) []byte {
	return []byte("user:" + uid)
}

func emailKey(email string) []byte {
	return []byte("email:" + email)
}

// CreateUser persists a new user and returns its generated id. The email
// index is checked and written inside the same transaction, so a duplicate
// registration fails with ErrUserAlreadyExists rather than clobbering.
func (u *UserRepository) CreateUser(email, passwordHash string) (string, error) {
	newID := uuid.New().String()
	rec := userRecord{
		UID:          newID,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().Unix(),
	}
	data, err := marshalRecord(rec)
	if err != nil {
		return "", fmt.Errorf("marshal failed: %w", err)
	}

	err = u.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(emailKey(email)); err == nil {
			return errors.ErrUserAlreadyExists
		} else if !stderrors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(emailKey(email), []byte(newID)); err != nil {
			return err
		}
		return txn.Set(userKey(newID), data)
	})
	if err != nil {
		if stderrors.Is(err, errors.ErrUserAlreadyExists) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return newID, nil
}

// Credentials resolves a login email to the stored uid and password hash.
func (u *UserRepository) Credentials(email string) (string, string, error) {
	var rec userRecord
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(emailKey(email))
		if err != nil {
			return err
		}
		var uid []byte
		if uid, err = item.ValueCopy(nil); err != nil {
			return err
		}
		item, err = txn.Get(userKey(string(uid)))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return unmarshalRecord(val, &rec)
		})
	})
	if err != nil {
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return "", "", errors.ErrNotFound
		}
		return "", "", fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return rec.UID, rec.PasswordHash, nil
}

func (u *UserRepository) GetUser(uid string) (domain.User, error) {
	var rec userRecord
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(uid))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return unmarshalRecord(val, &rec)
		})
	})
	if err != nil {
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return domain.User{}, errors.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return toDomainUser(rec), nil
}

// ListUsers returns every registered user, for the user directory surface.
func (u *UserRepository) ListUsers() ([]domain.User, error) {
	var users []domain.User
	err := u.db.View(func(txn *badger.Txn) error {
		prefix := []byte("user:")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec userRecord
			err := it.Item().Value(func(val []byte) error {
				return unmarshalRecord(val, &rec)
			})
			if err != nil {
				return err
			}
			users = append(users, toDomainUser(rec))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return users, nil
}

// UpdateChats runs a read-modify-write on the user's room list inside one
// transaction. Badger transactions are serializable, so two concurrent
// updates of the same user cannot lose each other's write; a conflicting
// transaction aborts and surfaces as StoreUnavailable for the caller to
// retry.
func (u *UserRepository) UpdateChats(uid string, mutate func(chats []domain.RoomID) []domain.RoomID) error {
	err := u.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(uid))
		if err != nil {
			return err
		}
		var rec userRecord
		if err := item.Value(func(val []byte) error {
			return unmarshalRecord(val, &rec)
		}); err != nil {
			return err
		}

		chats := make([]domain.RoomID, 0, len(rec.Chats))
		for _, c := range rec.Chats {
			chats = append(chats, domain.RoomID(c))
		}
		chats = mutate(chats)

		rec.Chats = rec.Chats[:0]
		for _, c := range chats {
			rec.Chats = append(rec.Chats, string(c))
		}
		data, err := marshalRecord(rec)
		if err != nil {
			return err
		}
		return txn.Set(userKey(uid), data)
	})
	if err != nil {
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return errors.ErrNotFound
		}
		return fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return nil
}

func toDomainUser(rec userRecord) domain.User {
	user := domain.User{
		UID:       rec.UID,
		Email:     rec.Email,
		CreatedAt: time.Unix(rec.CreatedAt, 0).UTC(),
	}
	for _, c := range rec.Chats {
		user.Chats = append(user.Chats, domain.RoomID(c))
	}
	return user
}
