package model

import (
	"fmt"
	"strings"
	"time"
)

// Role はユーザーの権限種別。
type Role string

// 定義済みロール
const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole は文字列をRoleに変換する。
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleUser, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role: %q", s)
	}
}

// User はサービス利用ユーザーを表す。
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Address      string
	Avatar       string // アバター画像のURL。未設定の場合は空文字
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Summary はユーザーの公開情報を返す。
func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Avatar:   u.Avatar,
	}
}

// UserSummary は書籍やリクエストに埋め込まれる相手ユーザーの情報。
type UserSummary struct {
	ID       string
	Username string
	Email    string
	Avatar   string
}

// UserStats はプロフィール画面の集計値。
type UserStats struct {
	OwnedBooks    int
	BorrowedBooks int
	TotalRequests int
}
