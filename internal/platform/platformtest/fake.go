// Package platformtest provides an in-memory guild for exercising platform consumers.
package platformtest

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/warden/internal/platform"
)

// Notice is a message sent through the fake notifier.
type Notice struct {
	ChannelID snowflake.ID
	Text      string
	HasImage  bool
}

// Timeout is a timeout applied through the fake directory.
type Timeout struct {
	GuildID snowflake.ID
	UserID  snowflake.ID
	Minutes int
	Reason  string
}

// Channel is a text channel of the fake guild.
type Channel struct {
	ID   snowflake.ID
	Name string
}

type overwriteKey struct {
	channelID snowflake.ID
	roleID    snowflake.ID
}

// Fake is a thread-safe in-memory implementation of platform.Notifier and platform.Directory.
// Error fields, when set, are returned by the corresponding operations.
type Fake struct {
	mu sync.Mutex

	Channels   map[snowflake.ID][]Channel
	Members    map[snowflake.ID]map[snowflake.ID]*platform.Member
	Roles      map[snowflake.ID]map[string]snowflake.ID
	Overwrites map[overwriteKey]platform.PermState

	Notices         []Notice
	Timeouts        []Timeout
	Kicks           []snowflake.ID
	DeletedMessages []snowflake.ID
	PurgeCalls      []int
	PermissionSets  int
	RoleCreates     int
	RoleGrants      []snowflake.ID

	TimeoutErr    error
	KickErr       error
	PurgeErr      error
	DeleteErr     error
	EnsureRoleErr error
	GrantErr      error
	SetPermErr    error
	NoticeErr     error

	nextID atomic.Uint64
}

// NewFake creates an empty fake platform.
func NewFake() *Fake {
	f := &Fake{
		Channels:   make(map[snowflake.ID][]Channel),
		Members:    make(map[snowflake.ID]map[snowflake.ID]*platform.Member),
		Roles:      make(map[snowflake.ID]map[string]snowflake.ID),
		Overwrites: make(map[overwriteKey]platform.PermState),
	}
	f.nextID.Store(900000)

	return f
}

// AddChannel adds a text channel to a guild.
func (f *Fake) AddChannel(guildID, channelID snowflake.ID, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Channels[guildID] = append(f.Channels[guildID], Channel{ID: channelID, Name: name})
}

// AddMember adds a member to a guild.
func (f *Fake) AddMember(guildID snowflake.ID, member *platform.Member) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Members[guildID] == nil {
		f.Members[guildID] = make(map[snowflake.ID]*platform.Member)
	}
	f.Members[guildID][member.UserID] = member
}

// AddRole adds a named role to a guild.
func (f *Fake) AddRole(guildID, roleID snowflake.ID, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Roles[guildID] == nil {
		f.Roles[guildID] = make(map[string]snowflake.ID)
	}
	f.Roles[guildID][name] = roleID
}

// SetOverwrite sets the observed send permission of a role in a channel.
func (f *Fake) SetOverwrite(channelID, roleID snowflake.ID, state platform.PermState) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Overwrites[overwriteKey{channelID, roleID}] = state
}

// NoticeTexts returns the text of every notice sent so far.
func (f *Fake) NoticeTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	texts := make([]string, 0, len(f.Notices))
	for _, n := range f.Notices {
		texts = append(texts, n.Text)
	}
	return texts
}

// Snapshot runs fn while holding the fake's lock.
func (f *Fake) Snapshot(fn func(f *Fake)) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fn(f)
}

func (f *Fake) SendNotice(_ context.Context, channelID snowflake.ID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.NoticeErr != nil {
		return f.NoticeErr
	}
	f.Notices = append(f.Notices, Notice{ChannelID: channelID, Text: text})
	return nil
}

func (f *Fake) SendReport(_ context.Context, channelID snowflake.ID, text string, png io.Reader) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.NoticeErr != nil {
		return f.NoticeErr
	}

	data, _ := io.ReadAll(png)
	f.Notices = append(f.Notices, Notice{ChannelID: channelID, Text: text, HasImage: len(data) > 0})
	return nil
}

func (f *Fake) DeleteMessage(_ context.Context, _, messageID snowflake.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	f.DeletedMessages = append(f.DeletedMessages, messageID)
	return nil
}

func (f *Fake) TimeoutMember(_ context.Context, guildID, userID snowflake.ID, minutes int, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.TimeoutErr != nil {
		return f.TimeoutErr
	}
	f.Timeouts = append(f.Timeouts, Timeout{GuildID: guildID, UserID: userID, Minutes: minutes, Reason: reason})
	return nil
}

func (f *Fake) KickMember(_ context.Context, guildID, userID snowflake.ID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.KickErr != nil {
		return f.KickErr
	}
	if members := f.Members[guildID]; members != nil {
		delete(members, userID)
	}
	f.Kicks = append(f.Kicks, userID)
	return nil
}

func (f *Fake) PurgeMessages(_ context.Context, _ snowflake.ID, amount int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.PurgeCalls = append(f.PurgeCalls, amount)
	if f.PurgeErr != nil {
		return 0, f.PurgeErr
	}
	return amount, nil
}

func (f *Fake) GetMember(_ context.Context, guildID, userID snowflake.ID) (*platform.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	member, ok := f.Members[guildID][userID]
	if !ok {
		return nil, platform.ErrNotFound
	}

	cp := *member
	cp.RoleIDs = append([]snowflake.ID(nil), member.RoleIDs...)
	return &cp, nil
}

func (f *Fake) GrantRole(_ context.Context, guildID, userID, roleID snowflake.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.GrantErr != nil {
		return f.GrantErr
	}

	member, ok := f.Members[guildID][userID]
	if !ok {
		return platform.ErrNotFound
	}
	member.RoleIDs = append(member.RoleIDs, roleID)
	f.RoleGrants = append(f.RoleGrants, userID)
	return nil
}

func (f *Fake) FindRole(_ context.Context, guildID snowflake.ID, name string) (snowflake.ID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id, ok := f.Roles[guildID][name]
	if !ok {
		return 0, platform.ErrNotFound
	}
	return id, nil
}

func (f *Fake) EnsureRole(
	_ context.Context, guildID snowflake.ID, name string, _ platform.RoleAttrs,
) (snowflake.ID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if id, ok := f.Roles[guildID][name]; ok {
		return id, nil
	}
	if f.EnsureRoleErr != nil {
		return 0, f.EnsureRoleErr
	}

	if f.Roles[guildID] == nil {
		f.Roles[guildID] = make(map[string]snowflake.ID)
	}
	id := snowflake.ID(f.nextID.Add(1))
	f.Roles[guildID][name] = id
	f.RoleCreates++
	return id, nil
}

func (f *Fake) ResolveChannel(_ context.Context, guildID snowflake.ID, preferredName string) (snowflake.ID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	channels := f.Channels[guildID]
	for _, ch := range channels {
		if ch.Name == preferredName {
			return ch.ID, nil
		}
	}
	if len(channels) == 0 {
		return 0, platform.ErrNotFound
	}
	return channels[0].ID, nil
}

func (f *Fake) GetSendPermission(_ context.Context, channelID, roleID snowflake.ID) (platform.PermState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.Overwrites[overwriteKey{channelID, roleID}], nil
}

func (f *Fake) SetSendPermission(_ context.Context, channelID, roleID snowflake.ID, state platform.PermState) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.SetPermErr != nil {
		return f.SetPermErr
	}
	f.Overwrites[overwriteKey{channelID, roleID}] = state
	f.PermissionSets++
	return nil
}
