package misc

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strconv"
	"time"
	"unsafe"

	"github.com/gin-gonic/gin"
)

var (
	ErrMissingId = errors.New("missing id")
)

type Status struct {
	Code   string `json:"status"`
	ID     string `json:"id,omitempty"`
	Msg    string `json:"msg,omitempty"`
	ErrKey string `json:"error,omitempty"` // machine-readable error code
}

func StatusOK(id string) Status {
	return Status{Code: "success", ID: id}
}

func StatusErr(msg string) Status {
	return Status{Code: "error", Msg: msg}
}

// StatusErrCode carries a stable error key alongside the human message so
// clients can branch without parsing the message.
func StatusErrCode(key, msg string) Status {
	return Status{Code: "error", ErrKey: key, Msg: msg}
}

func AbortWithErr(c *gin.Context, code int, err error) {
	c.JSON(code, StatusErr(err.Error()))
	c.Abort()
}

// 9 bytes of unixnano and 7 random bytes
func PseudoUUID() string {
	now := time.Now().UnixNano()
	randPart := make([]byte, 7)
	if _, err := rand.Read(randPart); err != nil {
		copy(randPart, (*(*[8]byte)(unsafe.Pointer(&now)))[:7])
	}
	return strconv.FormatInt(now, 10)[1:] + hex.EncodeToString(randPart)
}

func TrimEmail(email string) string {
	out := make([]byte, 0, len(email))
	for i := 0; i < len(email); i++ {
		ch := email[i]
		if ch == ' ' || ch == '\t' {
			continue
		}
		if ch >= 'A' && ch <= 'Z' {
			ch += 'a' - 'A'
		}
		out = append(out, ch)
	}
	return string(out)
}
