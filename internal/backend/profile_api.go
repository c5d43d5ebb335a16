package backend

import (
	"context"

	"github.com/hitoshi/libraryfront/internal/model"
)

// ProfileAPI は /profile/* エンドポイントのクライアント。
// トークンはTokenSourceから付与される。
type ProfileAPI struct {
	client *Client
}

// NewProfileAPI はProfileAPIを生成する。
func NewProfileAPI(client *Client) *ProfileAPI {
	return &ProfileAPI{client: client}
}

// GetProfile は GET /profile を呼び出す。
func (p *ProfileAPI) GetProfile(ctx context.Context) (*model.Profile, error) {
	var resp model.Profile
	if err := p.client.Get(ctx, "/profile", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateProfile は PUT /profile を呼び出す。
func (p *ProfileAPI) UpdateProfile(ctx context.Context, req model.UpdateProfileRequest) (*model.Profile, error) {
	var resp model.Profile
	if err := p.client.Put(ctx, "/profile", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdatePreferences は PUT /profile/preferences を呼び出す。
func (p *ProfileAPI) UpdatePreferences(ctx context.Context, req model.UpdatePreferencesRequest) (*model.Profile, error) {
	var resp model.Profile
	if err := p.client.Put(ctx, "/profile/preferences", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ChangePassword は PUT /profile/change-password を呼び出す。
func (p *ProfileAPI) ChangePassword(ctx context.Context, req model.ChangePasswordRequest) (*model.Confirmation, error) {
	var resp model.Confirmation
	if err := p.client.Put(ctx, "/profile/change-password", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetStatistics は GET /profile/statistics を呼び出す。
func (p *ProfileAPI) GetStatistics(ctx context.Context) (*model.UserStatistics, error) {
	var resp model.UserStatistics
	if err := p.client.Get(ctx, "/profile/statistics", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteAccount は DELETE /profile/account を呼び出す。
func (p *ProfileAPI) DeleteAccount(ctx context.Context, req model.DeleteAccountRequest) (*model.Confirmation, error) {
	var resp model.Confirmation
	if err := p.client.Delete(ctx, "/profile/account", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
