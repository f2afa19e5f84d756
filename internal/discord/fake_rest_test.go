package discord

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// fakeREST はrestClientのテスト用実装。呼び出しを記録し、ギルドの状態をメモリ上に持つ。
type fakeREST struct {
	mu sync.Mutex

	calls    []string
	nextID   int
	guild    *discordgo.Guild
	channels []*discordgo.Channel
	roles    []*discordgo.Role
	members  map[string]*discordgo.Member
	messages map[string]*discordgo.Message

	sendEmbedErr error
	nicknameErr  error
	pinErr       error
	roleAddErr   error
}

func newFakeREST() *fakeREST {
	return &fakeREST{
		guild: &discordgo.Guild{ID: "g1", OwnerID: "owner"},
		channels: []*discordgo.Channel{
			{ID: "c-verify", Name: "verification", Type: discordgo.ChannelTypeGuildText},
			{ID: "c-welcome", Name: "welcome-oracle-member-❤️", Type: discordgo.ChannelTypeGuildText},
			{ID: "c-general", Name: "general", Type: discordgo.ChannelTypeGuildText},
		},
		roles: []*discordgo.Role{
			{ID: "g1", Name: "@everyone"},
			{ID: "r-verified", Name: "Member Oracle"},
			{ID: "r-man", Name: "new man"},
			{ID: "r-admin", Name: "Admin", Permissions: discordgo.PermissionAdministrator},
		},
		members:  map[string]*discordgo.Member{},
		messages: map[string]*discordgo.Message{},
	}
}

func (f *fakeREST) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeREST) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeREST) newMessage(channelID, authorID string) *discordgo.Message {
	f.nextID++
	msg := &discordgo.Message{
		ID:        fmt.Sprintf("m%d", f.nextID),
		ChannelID: channelID,
		Author:    &discordgo.User{ID: authorID},
	}
	f.messages[msg.ID] = msg
	return msg
}

func (f *fakeREST) addMember(id string, bot bool, roles ...string) *discordgo.Member {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := &discordgo.Member{
		User:  &discordgo.User{ID: id, Username: "user-" + id, Bot: bot},
		Roles: roles,
	}
	f.members[id] = m
	return m
}

func (f *fakeREST) UserChannelCreate(recipientID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("dm_open %s", recipientID)
	return &discordgo.Channel{ID: "dm-" + recipientID, Type: discordgo.ChannelTypeDM}, nil
}

func (f *fakeREST) Channel(channelID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.channels {
		if c.ID == channelID {
			return c, nil
		}
	}
	return nil, fmt.Errorf("unknown channel %s", channelID)
}

func (f *fakeREST) ChannelMessage(channelID, messageID string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := f.messages[messageID]; ok {
		return msg, nil
	}
	return nil, fmt.Errorf("unknown message %s", messageID)
}

func (f *fakeREST) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("send %s %s", channelID, content)
	return f.newMessage(channelID, "bot"), nil
}

func (f *fakeREST) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendEmbedErr != nil {
		return nil, f.sendEmbedErr
	}
	f.record("embed %s %s", channelID, embed.Title)
	return f.newMessage(channelID, "bot"), nil
}

func (f *fakeREST) ChannelMessageDelete(channelID, messageID string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("delete %s %s", channelID, messageID)
	delete(f.messages, messageID)
	return nil
}

func (f *fakeREST) ChannelMessagePin(channelID, messageID string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pinErr != nil {
		return f.pinErr
	}
	f.record("pin %s %s", channelID, messageID)
	return nil
}

func (f *fakeREST) MessageReactionAdd(channelID, messageID, emojiID string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("react %s %s", messageID, emojiID)
	return nil
}

func (f *fakeREST) Guild(guildID string, _ ...discordgo.RequestOption) (*discordgo.Guild, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.guild, nil
}

func (f *fakeREST) GuildChannels(guildID string, _ ...discordgo.RequestOption) ([]*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channels, nil
}

func (f *fakeREST) GuildRoles(guildID string, _ ...discordgo.RequestOption) ([]*discordgo.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.roles, nil
}

func (f *fakeREST) GuildMember(guildID, userID string, _ ...discordgo.RequestOption) (*discordgo.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.members[userID]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("unknown member %s", userID)
}

func (f *fakeREST) GuildMemberRoleAdd(guildID, userID, roleID string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.roleAddErr != nil {
		return f.roleAddErr
	}
	f.record("role_add %s %s", userID, roleID)
	return nil
}

func (f *fakeREST) GuildMemberRoleRemove(guildID, userID, roleID string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("role_remove %s %s", userID, roleID)
	return nil
}

func (f *fakeREST) GuildMemberNickname(guildID, userID, nickname string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.nicknameErr != nil {
		return f.nicknameErr
	}
	f.record("nick %s %s", userID, nickname)
	return nil
}

// restError はAPIエラーレスポンスを模したエラーを生成する。
func restError(status, code int) error {
	return &discordgo.RESTError{
		Response: &http.Response{StatusCode: status, Status: http.StatusText(status)},
		Message:  &discordgo.APIErrorMessage{Code: code, Message: "test"},
	}
}
