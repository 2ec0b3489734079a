// Package notify posts batch summaries and suspensions to Discord.
package notify

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/dustin/go-humanize"

	"github.com/denislee/exptracker/internal/directory"
	"github.com/denislee/exptracker/internal/engine"
)

// sender is the part of *discordgo.Session the notifier uses.
type sender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord sends messages to a fixed set of channels. Sends run in the
// background; Close waits for them.
type Discord struct {
	session  sender
	closer   func() error
	channels []string
	wg       sync.WaitGroup
}

// NewDiscord connects a bot session. It returns nil and no error when token
// is empty or no channel is configured, in which case notifications are
// off.
func NewDiscord(token string, channelIDs []string) (*Discord, error) {
	if token == "" {
		log.Println("[W] [Notify/Discord] DISCORD_BOT_TOKEN not set. Notifications are off.")
		return nil, nil
	}
	channels := cleanChannels(channelIDs)
	if len(channels) == 0 {
		log.Println("[W] [Notify/Discord] No valid channel IDs found in DISCORD_CHANNEL_IDS. Notifications are off.")
		return nil, nil
	}

	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("could not create discord session: %w", err)
	}
	dg.AddHandler(func(s *discordgo.Session, _ *discordgo.Ready) {
		log.Printf("[I] [Notify/Discord] Connected as %s, posting to %d channel(s): %s",
			s.State.User.Username, len(channels), strings.Join(channels, ", "))
	})
	if err := dg.Open(); err != nil {
		return nil, fmt.Errorf("could not open discord connection: %w", err)
	}
	return &Discord{session: dg, closer: dg.Close, channels: channels}, nil
}

func newWithSender(s sender, channelIDs []string) *Discord {
	return &Discord{session: s, channels: cleanChannels(channelIDs)}
}

func cleanChannels(ids []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func (d *Discord) RunFinished(_ context.Context, r engine.BatchReport) {
	d.send(FormatReport(r))
}

func (d *Discord) Suspended(_ context.Context, c *directory.Character) {
	d.send(FormatSuspension(c))
}

func (d *Discord) send(content string) {
	for _, ch := range d.channels {
		d.wg.Add(1)
		go func(channel string) {
			defer d.wg.Done()
			if _, err := d.session.ChannelMessageSend(channel, content); err != nil {
				log.Printf("[E] [Notify/Discord] Could not post to channel %s: %v", channel, err)
			}
		}(ch)
	}
}

// Close waits for pending messages and closes the session.
func (d *Discord) Close() error {
	d.wg.Wait()
	if d.closer != nil {
		log.Println("[I] [Notify/Discord] Closing Discord connection...")
		return d.closer()
	}
	return nil
}

// FormatReport renders a batch report as a short Discord message.
func FormatReport(r engine.BatchReport) string {
	var b strings.Builder
	title := "Scrape run finished"
	if r.RetryPass {
		title = "Retry pass finished"
	}
	fmt.Fprintf(&b, "**%s** (%s)\n", title, r.FinishedAt.Sub(r.StartedAt).Round(time.Second))
	fmt.Fprintf(&b, "%s due: %s ok, %s failed, %s skipped\n",
		humanize.Comma(int64(r.Due)), humanize.Comma(int64(r.Succeeded)),
		humanize.Comma(int64(r.Failed)), humanize.Comma(int64(r.Skipped)))

	servers := make([]string, 0, len(r.Servers))
	for s := range r.Servers {
		servers = append(servers, s)
	}
	sort.Strings(servers)
	for _, s := range servers {
		l := r.Servers[s]
		fmt.Fprintf(&b, "- %s: %d/%d ok", s, l.Succeeded, l.Due)
		if l.Failed > 0 {
			fmt.Fprintf(&b, ", %d failed", l.Failed)
		}
		if l.Skipped > 0 {
			fmt.Fprintf(&b, ", %d skipped", l.Skipped)
		}
		b.WriteString("\n")
	}

	if len(r.Failures) > 0 {
		kinds := make([]string, 0, len(r.Failures))
		for k, n := range r.Failures {
			kinds = append(kinds, fmt.Sprintf("%s=%d", k, n))
		}
		sort.Strings(kinds)
		fmt.Fprintf(&b, "Failures: %s\n", strings.Join(kinds, ", "))
	}
	if len(r.Suspended) > 0 {
		fmt.Fprintf(&b, "Suspended: %s\n", strings.Join(r.Suspended, ", "))
	}
	if r.TimedOut {
		b.WriteString("Run hit its timeout; remaining characters stay due.\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatSuspension renders one suspension.
func FormatSuspension(c *directory.Character) string {
	msg := fmt.Sprintf("**%s** (%s/%s) suspended: %s", c.Name, c.Server, c.World, c.Recovery.Reason)
	if c.Recovery.LastError != "" {
		msg += fmt.Sprintf(" after %d error(s), last: %s", c.Recovery.ErrorCount, c.Recovery.LastError)
	}
	return msg
}
