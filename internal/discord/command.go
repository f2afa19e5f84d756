package discord

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/hitoshi/verifybot/internal/messaging"
)

// commandSendVerify は認証開始用の案内メッセージを投稿する管理者コマンド。
const commandSendVerify = "sendverify"

// parseCommand はプレフィックス付きのコマンド名を取り出す。引数は無視する。
func parseCommand(content, prefix string) (string, bool) {
	content = strings.TrimSpace(content)
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return "", false
	}
	fields := strings.Fields(strings.TrimPrefix(content, prefix))
	if len(fields) == 0 {
		return "", false
	}
	return strings.ToLower(fields[0]), true
}

func verificationPrompt(emoji string) messaging.Message {
	return messaging.Message{
		Title:       "🔰 Member Verification",
		Description: "React with " + emoji + " to begin verification.\n\nI will DM you for your data.",
		Color:       messaging.ColorBlue,
	}
}

func (g *Gateway) handleCommand(m *discordgo.Message, name string) {
	switch name {
	case commandSendVerify:
		g.sendVerify(m)
	}
}

// sendVerify は認証チャンネルに案内を投稿し、開始リアクションを付けてピン留めする。
func (g *Gateway) sendVerify(m *discordgo.Message) {
	ctx, _ := g.runContext()
	opt := discordgo.WithContext(ctx)
	log := g.logger.With(
		slog.String("command", commandSendVerify),
		slog.String("member_id", m.Author.ID),
	)

	guild, err := g.rest.Guild(m.GuildID, opt)
	if err != nil {
		log.Error("ギルド情報を取得できませんでした", slog.String("error", err.Error()))
		return
	}
	roles, err := g.rest.GuildRoles(m.GuildID, opt)
	if err != nil {
		log.Error("ロール一覧を取得できませんでした", slog.String("error", err.Error()))
		return
	}
	member, err := g.rest.GuildMember(m.GuildID, m.Author.ID, opt)
	if err != nil {
		log.Error("メンバー情報を取得できませんでした", slog.String("error", err.Error()))
		return
	}
	if !isAdministrator(guild, roles, member) {
		log.Info("管理者以外からのコマンドを無視しました")
		return
	}

	if !g.isVerificationChannel(ctx, m.ChannelID) {
		g.reply(m.ChannelID, "⚠️ Please use this command in #"+g.cfg.VerificationChannelName)
		return
	}

	sent, err := g.rest.ChannelMessageSendEmbed(m.ChannelID, toEmbed(verificationPrompt(g.cfg.VerificationEmoji)), opt)
	if err != nil {
		log.Error("案内メッセージの投稿に失敗しました", slog.String("error", err.Error()))
		return
	}
	if err := g.rest.MessageReactionAdd(m.ChannelID, sent.ID, g.cfg.VerificationEmoji, opt); err != nil {
		log.Error("開始リアクションの追加に失敗しました", slog.String("error", err.Error()))
	}
	if err := g.rest.ChannelMessagePin(m.ChannelID, sent.ID, opt); err != nil {
		log.Warn("案内メッセージをピン留めできませんでした", slog.String("error", err.Error()))
		if errors.Is(translateError(err), messaging.ErrPermissionDenied) {
			g.reply(m.ChannelID, "⚠️ I don’t have permission to pin messages.")
		}
		return
	}
	log.Info("案内メッセージを投稿しました", slog.String("message_id", sent.ID))
}

func (g *Gateway) reply(channelID, text string) {
	if _, err := g.rest.ChannelMessageSend(channelID, text); err != nil {
		g.logger.Error("返信に失敗しました",
			slog.String("channel_id", channelID),
			slog.String("error", err.Error()),
		)
	}
}
