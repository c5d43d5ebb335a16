package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/libraryfront/internal/model"
)

// PostgresCredentialRepo はPostgreSQLを使用した資格情報リポジトリ。
type PostgresCredentialRepo struct {
	db *sql.DB
}

// NewPostgresCredentialRepo はPostgresCredentialRepoを生成する。
func NewPostgresCredentialRepo(db *sql.DB) *PostgresCredentialRepo {
	return &PostgresCredentialRepo{db: db}
}

// Save は資格情報をUPSERTする。
func (r *PostgresCredentialRepo) Save(ctx context.Context, clientID string, cred *model.Credential) error {
	userData, err := json.Marshal(cred.User)
	if err != nil {
		return fmt.Errorf("failed to encode credential user: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO client_credentials (client_id, token, refresh_token, user_data, expires_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (client_id) DO UPDATE SET
		   token = EXCLUDED.token,
		   refresh_token = EXCLUDED.refresh_token,
		   user_data = EXCLUDED.user_data,
		   expires_at = EXCLUDED.expires_at,
		   updated_at = EXCLUDED.updated_at`,
		clientID, cred.Token, cred.RefreshToken, userData, cred.ExpiresAt, cred.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

// FindByClientID は資格情報を取得する。期限切れの場合はnilを返す。
func (r *PostgresCredentialRepo) FindByClientID(ctx context.Context, clientID string) (*model.Credential, error) {
	cred := &model.Credential{}
	var userData []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT token, refresh_token, user_data, expires_at, updated_at
		 FROM client_credentials
		 WHERE client_id = $1 AND expires_at > now()`,
		clientID,
	).Scan(&cred.Token, &cred.RefreshToken, &userData, &cred.ExpiresAt, &cred.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find credential: %w", err)
	}

	if err := decodeUser(userData, cred); err != nil {
		return nil, err
	}
	return cred, nil
}

// DeleteByClientID は資格情報を削除する。
func (r *PostgresCredentialRepo) DeleteByClientID(ctx context.Context, clientID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM client_credentials WHERE client_id = $1`,
		clientID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}

// decodeUser は保存済みのユーザーJSONを復元する。
// "null" は未設定として扱う。
func decodeUser(data []byte, cred *model.Credential) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	user := &model.UserIdentity{}
	if err := json.Unmarshal(data, user); err != nil {
		return fmt.Errorf("failed to decode credential user: %w", err)
	}
	cred.User = user
	return nil
}

// compile-time interface check
var _ CredentialRepository = (*PostgresCredentialRepo)(nil)
