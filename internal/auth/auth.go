// Package auth resolves the acting user and their role relative to a
// deal. Identity here is deliberately small: an api key maps to a user,
// the user's type says which side of a deal they can be.
package auth

import (
	"errors"
	"time"

	"github.com/boltdb/bolt"
	"github.com/gin-gonic/gin"

	"github.com/brandpact/pact/config"
	"github.com/brandpact/pact/misc"
)

const ApiKeyHeader = `x-apikey`

const (
	Advertiser = "advertiser"
	Creator    = "creator"
)

var (
	ErrInvalidID    = errors.New("invalid user ID")
	ErrInvalidType  = errors.New("user type must be advertiser or creator")
	ErrInvalidEmail = errors.New("please provide a valid email")
	ErrNoAuth       = errors.New("missing or unknown api key")
)

type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Type   string `json:"type"` // advertiser | creator
	APIKey string `json:"apiKey,omitempty"`

	// Stripe customer backing escrow charges; unused in sandbox
	CustomerID string `json:"customerId,omitempty"`

	Created int64 `json:"created,omitempty"`
}

func (u *User) IsAdvertiser() bool { return u.Type == Advertiser }
func (u *User) IsCreator() bool    { return u.Type == Creator }

type Auth struct {
	db  *bolt.DB
	cfg *config.Config
}

func New(db *bolt.DB, cfg *config.Config) *Auth {
	return &Auth{db: db, cfg: cfg}
}

// SignUp creates a user and mints their api key inside one transaction.
func (a *Auth) SignUp(u *User) error {
	if u.Type != Advertiser && u.Type != Creator {
		return ErrInvalidType
	}
	u.Email = misc.TrimEmail(u.Email)
	if u.Email == "" {
		return ErrInvalidEmail
	}

	return a.db.Update(func(tx *bolt.Tx) error {
		id, err := misc.GetNextIndex(tx, a.cfg.Bucket.User)
		if err != nil {
			return err
		}

		u.ID = id
		u.APIKey = misc.PseudoUUID()
		u.Created = time.Now().Unix()

		if err := misc.PutTxJson(tx, a.cfg.Bucket.User, u.ID, u); err != nil {
			return err
		}
		return misc.PutBucketBytes(tx, a.cfg.Bucket.APIKey, u.APIKey, []byte(u.ID))
	})
}

func (a *Auth) GetUserTx(tx *bolt.Tx, id string) *User {
	var u User
	if misc.GetTxJson(tx, a.cfg.Bucket.User, id, &u) == nil && u.ID != "" {
		return &u
	}
	return nil
}

func (a *Auth) GetUser(id string) (u *User) {
	a.db.View(func(tx *bolt.Tx) error {
		u = a.GetUserTx(tx, id)
		return nil
	})
	return
}

func (a *Auth) getUserByKeyTx(tx *bolt.Tx, key string) *User {
	if key == "" {
		return nil
	}
	id := misc.GetBucket(tx, a.cfg.Bucket.APIKey).Get([]byte(key))
	if len(id) == 0 {
		return nil
	}
	return a.GetUserTx(tx, string(id))
}

const ginCtxUser = "authUser"

// VerifyUser is the gin middleware in front of every api route. It
// resolves the x-apikey header into a user and aborts with 401 otherwise.
func (a *Auth) VerifyUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		var u *User
		a.db.View(func(tx *bolt.Tx) error {
			u = a.getUserByKeyTx(tx, c.Request.Header.Get(ApiKeyHeader))
			return nil
		})

		if u == nil {
			misc.AbortWithErr(c, 401, ErrNoAuth)
			return
		}

		c.Set(ginCtxUser, u)
		c.Next()
	}
}

// CurrentUser returns the user VerifyUser put on the request context.
func CurrentUser(c *gin.Context) *User {
	if v, ok := c.Get(ginCtxUser); ok {
		if u, ok := v.(*User); ok {
			return u
		}
	}
	return nil
}
