package test_functional

import (
	"context"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type (
	LoginResp struct {
		Token string `json:"token"`
		User  struct {
			ID    uint64 `json:"id"`
			Name  string `json:"name"`
			Email string `json:"email"`
		} `json:"user"`
	}

	ContentResp struct {
		ID    uint64 `json:"id"`
		Link  string `json:"link"`
		Type  string `json:"type"`
		Title string `json:"title"`
	}

	ShareResp struct {
		Hash string `json:"hash"`
	}

	SharedResp struct {
		Owner   string        `json:"owner"`
		Content []ContentResp `json:"content"`
	}
)

func endpoint(path string) string {
	u := AppBaseURL
	u.Path = path
	return u.String()
}

func signupAndLogin(t *testing.T, ctx context.Context, email string) string {
	t.Helper()

	resp, err := resty.New().R().
		SetHeader("Content-Type", "application/json").
		SetContext(ctx).
		SetBody(`{"email": "` + email + `", "name": "functional user", "password": "Abc12345!"}`).
		Post(endpoint("/signup"))
	require.Nil(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode())

	login := LoginResp{}
	resp, err = resty.New().R().
		SetHeader("Content-Type", "application/json").
		SetContext(ctx).
		SetResult(&login).
		SetBody(`{"email": "` + email + `", "password": "Abc12345!"}`).
		Post(endpoint("/login"))
	require.Nil(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())
	require.NotEmpty(t, login.Token)

	return login.Token
}

func TestSignupAndLogin(t *testing.T) {
	defer FlushDB()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	t.Run("weak password rejected", func(t *testing.T) {
		resp, err := resty.New().R().
			SetHeader("Content-Type", "application/json").
			SetContext(ctx).
			SetBody(`{"email": "weak@gmail.com", "name": "weak", "password": "abc12345"}`).
			Post(endpoint("/signup"))
		assert.Nil(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode())
	})

	t.Run("signup login roundtrip", func(t *testing.T) {
		token := signupAndLogin(t, ctx, "roundtrip@gmail.com")
		assert.NotEmpty(t, token)

		var id uint64
		var email string
		err := DBConn.QueryRow(ctx,
			"SELECT id, email FROM users WHERE email=$1", "roundtrip@gmail.com").
			Scan(&id, &email)
		assert.Nil(t, err)
		assert.NotZero(t, id)
	})

	t.Run("duplicate signup conflicts", func(t *testing.T) {
		resp, err := resty.New().R().
			SetHeader("Content-Type", "application/json").
			SetContext(ctx).
			SetBody(`{"email": "roundtrip@gmail.com", "name": "again", "password": "Abc12345!"}`).
			Post(endpoint("/signup"))
		assert.Nil(t, err)
		assert.Equal(t, http.StatusConflict, resp.StatusCode())
	})

	t.Run("wrong password unauthorized", func(t *testing.T) {
		resp, err := resty.New().R().
			SetHeader("Content-Type", "application/json").
			SetContext(ctx).
			SetBody(`{"email": "roundtrip@gmail.com", "password": "Wrong12345!"}`).
			Post(endpoint("/login"))
		assert.Nil(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode())
	})
}

func TestContentCrud(t *testing.T) {
	defer FlushDB()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	token := signupAndLogin(t, ctx, "crud@gmail.com")

	created := ContentResp{}
	resp, err := resty.New().R().
		SetHeader("Content-Type", "application/json").
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&created).
		SetBody(`{"link": "https://example.com/a", "type": "article", "title": "first"}`).
		Post(endpoint("/user/create/post"))
	require.Nil(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode())
	require.NotZero(t, created.ID)

	gotList := make([]ContentResp, 0)
	resp, err = resty.New().R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&gotList).
		Get(endpoint("/user/content"))
	require.Nil(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())
	require.Len(t, gotList, 1)
	assert.Equal(t, "first", gotList[0].Title)

	resp, err = resty.New().R().
		SetHeader("Content-Type", "application/json").
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(`{"title": "renamed"}`).
		Patch(endpoint("/user/update/" + itoa(created.ID)))
	require.Nil(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode())

	resp, err = resty.New().R().
		SetContext(ctx).
		SetAuthToken(token).
		Delete(endpoint("/user/delete/" + itoa(created.ID)))
	require.Nil(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode())

	resp, err = resty.New().R().
		SetContext(ctx).
		Get(endpoint("/user/content"))
	require.Nil(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode())
}

func TestShareLink(t *testing.T) {
	defer FlushDB()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	token := signupAndLogin(t, ctx, "share@gmail.com")

	resp, err := resty.New().R().
		SetHeader("Content-Type", "application/json").
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(`{"link": "https://example.com/v", "type": "video", "title": "clip"}`).
		Post(endpoint("/user/create/post"))
	require.Nil(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode())

	first := ShareResp{}
	resp, err = resty.New().R().
		SetHeader("Content-Type", "application/json").
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&first).
		SetBody(`{"share": true}`).
		Post(endpoint("/share"))
	require.Nil(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())
	require.NotEmpty(t, first.Hash)

	second := ShareResp{}
	resp, err = resty.New().R().
		SetHeader("Content-Type", "application/json").
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&second).
		SetBody(`{"share": true}`).
		Post(endpoint("/share"))
	require.Nil(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Equal(t, first.Hash, second.Hash)

	shared := SharedResp{}
	resp, err = resty.New().R().
		SetContext(ctx).
		SetResult(&shared).
		Get(endpoint("/sharelink/" + first.Hash))
	require.Nil(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Equal(t, "functional user", shared.Owner)
	require.Len(t, shared.Content, 1)
	assert.Equal(t, "clip", shared.Content[0].Title)

	resp, err = resty.New().R().
		SetHeader("Content-Type", "application/json").
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(`{"share": false}`).
		Post(endpoint("/share"))
	require.Nil(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode())

	resp, err = resty.New().R().
		SetContext(ctx).
		Get(endpoint("/sharelink/" + first.Hash))
	require.Nil(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode())
}

func itoa(v uint64) string {
	return strconv.FormatUint(v, 10)
}
