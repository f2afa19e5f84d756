package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/hitoshi/verifybot/internal/messaging"
	"github.com/hitoshi/verifybot/internal/model"
	"github.com/hitoshi/verifybot/internal/verification"
)

// Intents はボットが購読するゲートウェイイベント。
// メンバー情報とメッセージ本文は特権インテントのため開発者ポータルでの有効化が必要。
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildMessageReactions |
	discordgo.IntentsDirectMessages |
	discordgo.IntentsDirectMessageReactions |
	discordgo.IntentsMessageContent

// Config はゲートウェイの設定。
type Config struct {
	Token                   string
	GuildID                 string // 空の場合はすべてのギルドのイベントを受け付ける
	VerificationChannelName string
	VerificationEmoji       string
	CommandPrefix           string
}

// Starter は認証セッションを開始する。verification.Serviceが満たす。
type Starter interface {
	Begin(ctx context.Context, req verification.Request) (model.RefusalReason, bool)
}

// Gateway はDiscordゲートウェイに接続し、受信イベントをHubと認証サービスへ振り分ける。
type Gateway struct {
	cfg       Config
	session   *discordgo.Session
	rest      restClient
	hub       *messaging.Hub
	messenger *Messenger
	logger    *slog.Logger

	mu      sync.RWMutex
	ctx     context.Context
	starter Starter
	botID   string
}

// New はボットトークンでDiscordセッションを生成する。接続はRunで行う。
func New(cfg Config, logger *slog.Logger) (*Gateway, error) {
	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	s.Identify.Intents = Intents

	g := newGateway(cfg, s, logger)
	g.session = s
	return g, nil
}

func newGateway(cfg Config, rest restClient, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.VerificationEmoji == "" {
		cfg.VerificationEmoji = "🙏"
	}
	if cfg.CommandPrefix == "" {
		cfg.CommandPrefix = "!"
	}
	hub := messaging.NewHub()
	return &Gateway{
		cfg:       cfg,
		rest:      rest,
		hub:       hub,
		messenger: NewMessenger(rest, hub, logger),
		logger:    logger,
		ctx:       context.Background(),
	}
}

// Messenger は認証セッションが利用するMessengerを返す。
func (g *Gateway) Messenger() *Messenger {
	return g.messenger
}

// Run はゲートウェイに接続し、ctxが終了するまでイベントを処理する。
// 開始されたセッションにはctxが引き継がれる。
func (g *Gateway) Run(ctx context.Context, starter Starter) error {
	g.mu.Lock()
	g.ctx = ctx
	g.starter = starter
	g.mu.Unlock()

	g.session.AddHandler(g.onReady)
	g.session.AddHandler(g.onMessageCreate)
	g.session.AddHandler(g.onReactionAdd)

	if err := g.session.Open(); err != nil {
		return fmt.Errorf("failed to connect to discord gateway: %w", err)
	}
	g.logger.Info("discord gateway connected")

	<-ctx.Done()

	g.logger.Info("closing discord gateway...")
	if err := g.session.Close(); err != nil {
		return fmt.Errorf("failed to close discord gateway: %w", err)
	}
	return nil
}

func (g *Gateway) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	if r.User == nil {
		return
	}
	g.mu.Lock()
	g.botID = r.User.ID
	g.mu.Unlock()

	g.logger.Info("bot connected",
		slog.String("bot_user", r.User.Username),
		slog.Int("guilds", len(r.Guilds)),
	)
}

func (g *Gateway) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Message == nil || m.Author == nil || m.Author.Bot {
		return
	}

	g.hub.Dispatch(messaging.Event{
		Kind:      messaging.EventMessage,
		UserID:    m.Author.ID,
		ChannelID: m.ChannelID,
		MessageID: m.ID,
		Content:   m.Content,
	})

	if m.GuildID == "" || !g.acceptsGuild(m.GuildID) {
		return
	}
	if name, ok := parseCommand(m.Content, g.cfg.CommandPrefix); ok {
		g.handleCommand(m.Message, name)
	}
}

func (g *Gateway) onReactionAdd(_ *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if r.MessageReaction == nil || r.UserID == g.botUserID() {
		return
	}
	emoji := emojiKey(r.Emoji)

	g.hub.Dispatch(messaging.Event{
		Kind:      messaging.EventReaction,
		UserID:    r.UserID,
		ChannelID: r.ChannelID,
		MessageID: r.MessageID,
		Emoji:     emoji,
	})

	if r.GuildID == "" || emoji != g.cfg.VerificationEmoji || !g.acceptsGuild(r.GuildID) {
		return
	}
	g.handleVerificationReaction(r)
}

// handleVerificationReaction は認証チャンネルのボット投稿に付いた開始リアクションを処理する。
func (g *Gateway) handleVerificationReaction(r *discordgo.MessageReactionAdd) {
	ctx, starter := g.runContext()
	if starter == nil {
		return
	}

	member := r.Member
	if member == nil || member.User == nil {
		var err error
		member, err = g.rest.GuildMember(r.GuildID, r.UserID, discordgo.WithContext(ctx))
		if err != nil {
			g.logger.Error("リアクションしたメンバーを取得できませんでした",
				slog.String("member_id", r.UserID),
				slog.String("error", err.Error()),
			)
			return
		}
	}
	if member.User == nil || member.User.Bot {
		return
	}

	if !g.isVerificationChannel(ctx, r.ChannelID) {
		return
	}

	msg, err := g.rest.ChannelMessage(r.ChannelID, r.MessageID, discordgo.WithContext(ctx))
	if err != nil {
		g.logger.Warn("リアクション対象のメッセージを取得できませんでした",
			slog.String("message_id", r.MessageID),
			slog.String("error", err.Error()),
		)
		return
	}
	if msg.Author == nil || msg.Author.ID != g.botUserID() {
		return
	}

	req := verification.Request{
		GuildID:   r.GuildID,
		ChannelID: r.ChannelID,
		Member:    toMember(member),
	}
	if reason, ok := starter.Begin(ctx, req); !ok {
		g.logger.Info("認証の開始を見送りました",
			slog.String("member_id", req.Member.ID),
			slog.String("reason", string(reason)),
		)
	}
}

func (g *Gateway) isVerificationChannel(ctx context.Context, channelID string) bool {
	ch, err := g.rest.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		g.logger.Warn("チャンネル情報を取得できませんでした",
			slog.String("channel_id", channelID),
			slog.String("error", err.Error()),
		)
		return false
	}
	return ch.Name == g.cfg.VerificationChannelName
}

func (g *Gateway) acceptsGuild(guildID string) bool {
	return g.cfg.GuildID == "" || g.cfg.GuildID == guildID
}

func (g *Gateway) botUserID() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.botID
}

func (g *Gateway) runContext() (context.Context, Starter) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.ctx, g.starter
}
