package backend

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"net/http"

	"github.com/winprodai/winprod/backend/data"
	"golang.org/x/crypto/scrypt"
)

func validatePassword(password string) error {
	if len(password) < 8 {
		return errors.New("password must be at least 8 characters")
	}

	return nil
}

func genRandPassword() (string, error) {
	pwBytes := make([]byte, 6)
	_, err := rand.Read(pwBytes)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(pwBytes), nil
}

func genSessionID() ([]byte, error) {
	sessionID := make([]byte, 16)
	_, err := io.ReadFull(rand.Reader, sessionID)
	if err != nil {
		return nil, err
	}

	return sessionID, nil
}

func digestPassword(password string) (digest []byte, salt []byte, err error) {
	salt = make([]byte, 8)
	_, err = rand.Read(salt)
	if err != nil {
		return nil, nil, err
	}

	digest, err = scrypt.Key([]byte(password), salt, 16384, 8, 1, 32)
	if err != nil {
		return nil, nil, err
	}

	return digest, salt, nil
}

func SetPassword(u *data.User, password string) error {
	digest, salt, err := digestPassword(password)
	if err != nil {
		return err
	}

	u.PasswordDigest = digest
	u.PasswordSalt = salt

	return nil
}

func IsPassword(u *data.User, password string) bool {
	digest, err := scrypt.Key([]byte(password), u.PasswordSalt, 16384, 8, 1, 32)
	if err != nil {
		return false
	}

	return bytes.Equal(digest, u.PasswordDigest)
}

// sessionToken reads the session ID from the X-Authentication header, the session cookie or the session
// form value, in that order.
func sessionToken(req *http.Request) string {
	if token := req.Header.Get("X-Authentication"); token != "" {
		return token
	}
	if cookie, err := req.Cookie("session"); err == nil {
		return cookie.Value
	}
	return req.FormValue("session")
}

func getUserFromSession(ctx context.Context, req *http.Request, db data.Queryer) *data.User {
	sessionID, err := hex.DecodeString(sessionToken(req))
	if err != nil || len(sessionID) == 0 {
		return nil
	}

	user, err := data.SelectUserBySessionID(ctx, db, sessionID)
	if err != nil {
		return nil
	}

	return user
}

// createSession starts a new session for userID and returns its hex encoded ID.
func createSession(ctx context.Context, db data.Queryer, userID int32) (string, error) {
	sessionID, err := genSessionID()
	if err != nil {
		return "", err
	}

	session := &data.Session{ID: sessionID}
	session.UserID.Int32 = userID
	session.UserID.Valid = true

	err = data.InsertSession(ctx, db, session)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(sessionID), nil
}

// ResetPassword gives the user named name a new random password and returns it.
func ResetPassword(ctx context.Context, db data.Queryer, name string) (string, error) {
	user, err := data.SelectUserByName(ctx, db, name)
	if err != nil {
		return "", err
	}

	password, err := genRandPassword()
	if err != nil {
		return "", err
	}

	update := &data.User{}
	err = SetPassword(update, password)
	if err != nil {
		return "", err
	}

	err = data.UpdateUserPassword(ctx, db, user.ID.Int32, update.PasswordDigest, update.PasswordSalt)
	if err != nil {
		return "", err
	}

	return password, nil
}
