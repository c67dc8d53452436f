package client

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

type (
	User struct {
		ID           uint64 `json:"id"`
		Email        string `json:"email"`
		Name         string `json:"name"`
		Handle       string `json:"handle"`
		Role         string `json:"role"`
		ThemePalette string `json:"themePalette"`
		ButtonStyle  string `json:"buttonStyle"`
	}

	Group struct {
		ID    uint64 `json:"id"`
		Name  string `json:"name"`
		Order int    `json:"order"`
	}

	authResp struct {
		Token string `json:"token"`
		User  User   `json:"user"`
	}

	// API is the REST client used by the editor contexts. It also serves as
	// the coordinator's Persister.
	API struct {
		http *resty.Client
	}
)

func NewAPI(baseURL string) *API {
	return &API{
		http: resty.New().SetBaseURL(baseURL).SetHeader("Content-Type", "application/json"),
	}
}

func (a *API) SetToken(token string) {
	a.http.SetAuthToken(token)
}

func (a *API) Register(ctx context.Context, email, password, name string) (*User, string, error) {
	out := authResp{}
	resp, err := a.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"email": email, "password": password, "name": name}).
		SetResult(&out).
		Post("/auth/register")
	if err != nil {
		return nil, "", errors.Wrap(err, "register")
	}
	if resp.IsError() {
		return nil, "", errors.New(fmt.Sprintf("register: unexpected status %d", resp.StatusCode()))
	}
	return &out.User, out.Token, nil
}

func (a *API) Login(ctx context.Context, email, password string) (*User, string, error) {
	out := authResp{}
	resp, err := a.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"email": email, "password": password}).
		SetResult(&out).
		Post("/auth/login")
	if err != nil {
		return nil, "", errors.Wrap(err, "login")
	}
	if resp.IsError() {
		return nil, "", errors.New(fmt.Sprintf("login: unexpected status %d", resp.StatusCode()))
	}
	return &out.User, out.Token, nil
}

func (a *API) CurrentUser(ctx context.Context) (*User, error) {
	out := User{}
	resp, err := a.http.R().SetContext(ctx).SetResult(&out).Get("/api/current")
	if err != nil {
		return nil, errors.Wrap(err, "current user")
	}
	if resp.IsError() {
		return nil, errors.New(fmt.Sprintf("current user: unexpected status %d", resp.StatusCode()))
	}
	return &out, nil
}

func (a *API) Links(ctx context.Context) ([]Link, error) {
	out := make([]Link, 0)
	resp, err := a.http.R().SetContext(ctx).SetResult(&out).Get("/api/links")
	if err != nil {
		return nil, errors.Wrap(err, "fetch links")
	}
	if resp.IsError() {
		return nil, errors.New(fmt.Sprintf("fetch links: unexpected status %d", resp.StatusCode()))
	}
	return out, nil
}

func (a *API) Groups(ctx context.Context) ([]Group, error) {
	out := make([]Group, 0)
	resp, err := a.http.R().SetContext(ctx).SetResult(&out).Get("/api/link-groups")
	if err != nil {
		return nil, errors.Wrap(err, "fetch groups")
	}
	if resp.IsError() {
		return nil, errors.New(fmt.Sprintf("fetch groups: unexpected status %d", resp.StatusCode()))
	}
	return out, nil
}

// PersistOrder implements Persister with the bulk reorder endpoint.
func (a *API) PersistOrder(ctx context.Context, items []LinkOrder) error {
	resp, err := a.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{"links": items}).
		Patch("/api/links/reorder")
	if err != nil {
		return errors.Wrap(err, "reorder request")
	}
	if resp.IsError() {
		return errors.New(fmt.Sprintf("reorder: unexpected status %d", resp.StatusCode()))
	}
	return nil
}
