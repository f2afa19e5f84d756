// Package discord はDiscordゲートウェイとREST APIを使い、messaging.Messengerを実装する。
package discord

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/hitoshi/verifybot/internal/messaging"
)

var (
	// ErrRoleNotFound はギルドに指定名のロールが無い場合に返す。
	ErrRoleNotFound = errors.New("role not found")
	// ErrChannelNotFound はギルドに指定名のチャンネルが無い場合に返す。
	ErrChannelNotFound = errors.New("channel not found")
)

// restClient はボットが利用するDiscord REST操作。*discordgo.Sessionが満たす。
type restClient interface {
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	ChannelMessagePin(channelID, messageID string, options ...discordgo.RequestOption) error
	MessageReactionAdd(channelID, messageID, emojiID string, options ...discordgo.RequestOption) error
	Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
	GuildChannels(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Channel, error)
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberNickname(guildID, userID, nickname string, options ...discordgo.RequestOption) error
}

// compile-time interface check
var _ restClient = (*discordgo.Session)(nil)

// maxNicknameLength はDiscordが受け付けるニックネームの最大文字数。
const maxNicknameLength = 32

// translateError はREST APIのエラーをmessagingのセンチネルエラーに変換する。
// 権限不足（50013/50001）はErrPermissionDeniedとして扱う。
func translateError(err error) error {
	if err == nil {
		return nil
	}
	restErr, ok := asRESTError(err)
	if !ok {
		return err
	}
	if restErr.Message != nil {
		switch restErr.Message.Code {
		case discordgo.ErrCodeCannotSendMessagesToThisUser:
			return fmt.Errorf("%w: %w", messaging.ErrDMBlocked, err)
		case discordgo.ErrCodeMissingPermissions, discordgo.ErrCodeMissingAccess:
			return fmt.Errorf("%w: %w", messaging.ErrPermissionDenied, err)
		}
	}
	if restErr.Response != nil && restErr.Response.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: %w", messaging.ErrPermissionDenied, err)
	}
	return err
}

// translateDMError はDM送信時のエラーを変換する。DMでの403は受信拒否とみなす。
func translateDMError(err error) error {
	if err == nil {
		return nil
	}
	if restErr, ok := asRESTError(err); ok && restErr.Response != nil && restErr.Response.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: %w", messaging.ErrDMBlocked, err)
	}
	return translateError(err)
}

func asRESTError(err error) (*discordgo.RESTError, bool) {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr != nil {
		return restErr, true
	}
	return nil, false
}

func toEmbed(msg messaging.Message) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       msg.Title,
		Description: msg.Description,
		Color:       int(msg.Color),
	}
}

// emojiKey はリアクションの絵文字を比較・API呼び出し用の文字列にする。
// カスタム絵文字は name:id 形式になる。
func emojiKey(e discordgo.Emoji) string {
	if e.ID != "" {
		return e.Name + ":" + e.ID
	}
	return e.Name
}

func findRoleID(roles []*discordgo.Role, name string) (string, bool) {
	for _, r := range roles {
		if r != nil && r.Name == name {
			return r.ID, true
		}
	}
	return "", false
}

// findTextChannelID はギルドのテキストチャンネルを名前で探す。
func findTextChannelID(channels []*discordgo.Channel, name string) (string, bool) {
	for _, c := range channels {
		if c != nil && c.Type == discordgo.ChannelTypeGuildText && c.Name == name {
			return c.ID, true
		}
	}
	return "", false
}

// displayName はギルド内で表示される名前を返す。ニックネーム、グローバル名、ユーザー名の順。
func displayName(m *discordgo.Member) string {
	if m == nil {
		return ""
	}
	if m.Nick != "" {
		return m.Nick
	}
	if m.User == nil {
		return ""
	}
	if m.User.GlobalName != "" {
		return m.User.GlobalName
	}
	return m.User.Username
}

func toMember(m *discordgo.Member) messaging.Member {
	if m == nil || m.User == nil {
		return messaging.Member{}
	}
	return messaging.Member{
		ID:          m.User.ID,
		DisplayName: displayName(m),
		Mention:     m.User.Mention(),
		IsBot:       m.User.Bot,
	}
}

// truncateNickname はニックネームを文字数上限に収める。
func truncateNickname(name string) string {
	runes := []rune(name)
	if len(runes) <= maxNicknameLength {
		return name
	}
	return strings.TrimSpace(string(runes[:maxNicknameLength]))
}

// isAdministrator はメンバーがギルドの管理者権限を持つかを返す。
// オーナー、または@everyoneを含む所持ロールのいずれかにAdministratorがあれば真。
func isAdministrator(guild *discordgo.Guild, roles []*discordgo.Role, member *discordgo.Member) bool {
	if guild == nil || member == nil {
		return false
	}
	if member.User != nil && guild.OwnerID == member.User.ID {
		return true
	}
	held := make(map[string]struct{}, len(member.Roles)+1)
	held[guild.ID] = struct{}{}
	for _, id := range member.Roles {
		held[id] = struct{}{}
	}
	for _, r := range roles {
		if r == nil {
			continue
		}
		if _, ok := held[r.ID]; ok && r.Permissions&discordgo.PermissionAdministrator != 0 {
			return true
		}
	}
	return false
}
