package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/hitoshi/verifybot/internal/messaging"
)

// Messenger はDiscord上でmessaging.Messengerを実装する。
// 受信系の待機はゲートウェイから配送されるHubのイベントで解決する。
type Messenger struct {
	rest   restClient
	hub    *messaging.Hub
	logger *slog.Logger
}

// NewMessenger はMessengerを生成する。
func NewMessenger(rest restClient, hub *messaging.Hub, logger *slog.Logger) *Messenger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Messenger{rest: rest, hub: hub, logger: logger}
}

func (m *Messenger) OpenDirectChannel(ctx context.Context, userID string) (string, error) {
	ch, err := m.rest.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to open DM channel: %w", translateDMError(err))
	}
	return ch.ID, nil
}

func (m *Messenger) SendDirectMessage(ctx context.Context, channelID string, msg messaging.Message) (string, error) {
	sent, err := m.rest.ChannelMessageSendEmbed(channelID, toEmbed(msg), discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to send DM: %w", translateDMError(err))
	}
	return sent.ID, nil
}

func (m *Messenger) AwaitNextMessage(ctx context.Context, userID, channelID string, timeout time.Duration) (string, error) {
	ev, err := m.hub.Wait(ctx, timeout, messaging.MessageFrom(userID, channelID))
	if err != nil {
		return "", err
	}
	return ev.Content, nil
}

// PresentChoice は選択肢の絵文字をリアクションとして付けたメッセージを送り、
// メンバーがそのいずれかを押すまで待つ。
func (m *Messenger) PresentChoice(ctx context.Context, userID, channelID string, msg messaging.Message, choices []messaging.Choice, timeout time.Duration) (messaging.Choice, error) {
	messageID, err := m.SendDirectMessage(ctx, channelID, msg)
	if err != nil {
		return messaging.Choice{}, err
	}

	for _, c := range choices {
		if err := m.rest.MessageReactionAdd(channelID, messageID, c.Emoji, discordgo.WithContext(ctx)); err != nil {
			return messaging.Choice{}, fmt.Errorf("failed to add reaction %s: %w", c.Emoji, translateDMError(err))
		}
	}

	ev, err := m.hub.Wait(ctx, timeout, messaging.ReactionOn(userID, messageID, choices))
	if err != nil {
		return messaging.Choice{}, err
	}
	for _, c := range choices {
		if c.Emoji == ev.Emoji {
			return c, nil
		}
	}
	return messaging.Choice{}, fmt.Errorf("unexpected reaction %q", ev.Emoji)
}

// HasRole はメンバーが指定名のロールを持つかを返す。ギルドにロールが無い場合はfalse。
func (m *Messenger) HasRole(ctx context.Context, guildID, userID, roleName string) (bool, error) {
	roleID, err := m.roleID(ctx, guildID, roleName)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}

	member, err := m.rest.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("failed to get member: %w", translateError(err))
	}
	return slices.Contains(member.Roles, roleID), nil
}

func (m *Messenger) GrantRole(ctx context.Context, guildID, userID, roleName string) error {
	roleID, err := m.roleID(ctx, guildID, roleName)
	if err != nil {
		return err
	}
	if err := m.rest.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to add role %q: %w", roleName, translateError(err))
	}
	return nil
}

func (m *Messenger) RevokeRole(ctx context.Context, guildID, userID, roleName string) error {
	roleID, err := m.roleID(ctx, guildID, roleName)
	if err != nil {
		return err
	}
	if err := m.rest.GuildMemberRoleRemove(guildID, userID, roleID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to remove role %q: %w", roleName, translateError(err))
	}
	return nil
}

func (m *Messenger) SetDisplayName(ctx context.Context, guildID, userID, name string) error {
	if err := m.rest.GuildMemberNickname(guildID, userID, truncateNickname(name), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to set nickname: %w", translateError(err))
	}
	return nil
}

func (m *Messenger) Announce(ctx context.Context, guildID, channelName string, msg messaging.Message) error {
	channels, err := m.rest.GuildChannels(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to list channels: %w", translateError(err))
	}
	channelID, ok := findTextChannelID(channels, channelName)
	if !ok {
		return fmt.Errorf("%w: #%s", ErrChannelNotFound, channelName)
	}
	if _, err := m.rest.ChannelMessageSendEmbed(channelID, toEmbed(msg), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to announce: %w", translateError(err))
	}
	return nil
}

// Notice は公開チャンネルにテキストを投稿し、deleteAfterが正なら経過後に削除する。
func (m *Messenger) Notice(ctx context.Context, channelID, text string, deleteAfter time.Duration) error {
	sent, err := m.rest.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to post notice: %w", translateError(err))
	}
	if deleteAfter > 0 {
		time.AfterFunc(deleteAfter, func() {
			if err := m.rest.ChannelMessageDelete(channelID, sent.ID); err != nil {
				m.logger.Warn("通知メッセージの削除に失敗しました",
					slog.String("channel_id", channelID),
					slog.String("error", err.Error()),
				)
			}
		})
	}
	return nil
}

func (m *Messenger) roleID(ctx context.Context, guildID, roleName string) (string, error) {
	roles, err := m.rest.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to list roles: %w", translateError(err))
	}
	id, ok := findRoleID(roles, roleName)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrRoleNotFound, roleName)
	}
	return id, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrRoleNotFound) || errors.Is(err, ErrChannelNotFound)
}

// compile-time interface check
var _ messaging.Messenger = (*Messenger)(nil)
