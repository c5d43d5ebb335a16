package app

import "strings"

// Command はlibraryfrontのサブコマンド。
type Command string

const (
	CommandServe       Command = "serve"
	CommandWorker      Command = "worker"
	CommandMigrate     Command = "migrate"
	CommandHealthcheck Command = "healthcheck"
)

// commandInfo はサブコマンドごとの説明と前提条件。
type commandInfo struct {
	description      string
	requiresDatabase bool
}

var commands = map[Command]commandInfo{
	CommandServe:       {description: "BFFサーバー（画面・認証API・カタログ中継）"},
	CommandWorker:      {description: "client_credentialsの期限切れレコード削除", requiresDatabase: true},
	CommandMigrate:     {description: "client_credentialsテーブルのマイグレーション", requiresDatabase: true},
	CommandHealthcheck: {description: "distrolessイメージ用の/healthプローブ"},
}

// ParseCommand は先頭の引数をサブコマンドとして解釈する。
// 大文字小文字は区別しない。空または未知の値はserveとして扱う。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	cmd := Command(strings.ToLower(strings.TrimSpace(args[0])))
	if _, ok := commands[cmd]; !ok {
		return CommandServe
	}
	return cmd
}

// Description はログに出すサブコマンドの説明を返す。
func (c Command) Description() string {
	return commands[c].description
}

// RequiresDatabase はDATABASE_URLが必須のサブコマンドかを返す。
// 資格情報ストアがredisやmemoryでも、worker/migrateはPostgresを対象にする。
func (c Command) RequiresDatabase() bool {
	return commands[c].requiresDatabase
}
