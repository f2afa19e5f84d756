package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はDiscordゲートウェイと運用HTTPサーバーを起動することを示す。
	CommandServe Command = "serve"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandImportWorkbook はExcelの会員台帳をPostgreSQLへ取り込むことを示す。
	// 取り込むファイルのパスを2番目の引数に取る。
	CommandImportWorkbook Command = "import-workbook"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "import-workbook":
		return CommandImportWorkbook
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}
