package notify

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/require"

	"github.com/denislee/exptracker/internal/directory"
	"github.com/denislee/exptracker/internal/engine"
	"github.com/denislee/exptracker/internal/recovery"
	"github.com/denislee/exptracker/internal/scrape"
)

type fakeSender struct {
	mu   sync.Mutex
	sent map[string][]string
	fail string
}

func (f *fakeSender) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if channelID == f.fail {
		return nil, errors.New("missing access")
	}
	if f.sent == nil {
		f.sent = make(map[string][]string)
	}
	f.sent[channelID] = append(f.sent[channelID], content)
	return &discordgo.Message{ChannelID: channelID, Content: content}, nil
}

func TestNewDiscordWithoutTokenIsOff(t *testing.T) {
	d, err := NewDiscord("", []string{"123"})
	require.NoError(t, err)
	require.Nil(t, d)

	d, err = NewDiscord("token", []string{" ", ""})
	require.NoError(t, err)
	require.Nil(t, d)
}

func TestSendsToEveryChannel(t *testing.T) {
	fs := &fakeSender{fail: "999"}
	d := newWithSender(fs, []string{"111", " 222 ", "111", "999"})
	require.Equal(t, []string{"111", "222", "999"}, d.channels)

	c := &directory.Character{Name: "Lost", Server: "rubinot", World: "Elysian"}
	c.Recovery = recovery.State{ErrorCount: 3, LastError: "character not found", Reason: recovery.ReasonErrors}
	d.Suspended(context.Background(), c)
	require.NoError(t, d.Close())

	chans := make([]string, 0, len(fs.sent))
	for ch := range fs.sent {
		chans = append(chans, ch)
	}
	sort.Strings(chans)
	require.Equal(t, []string{"111", "222"}, chans)
	require.Equal(t, "**Lost** (rubinot/Elysian) suspended: errors after 3 error(s), last: character not found", fs.sent["111"][0])
}

func TestFormatReport(t *testing.T) {
	start := time.Date(2025, 1, 9, 6, 0, 0, 0, time.UTC)
	r := engine.BatchReport{
		StartedAt:  start,
		FinishedAt: start.Add(42 * time.Minute),
		Due:        1250,
		Succeeded:  1240,
		Failed:     8,
		Skipped:    2,
		Failures:   map[scrape.ErrorKind]int{scrape.KindNotFound: 5, scrape.KindNetwork: 3},
		Servers: map[string]*engine.LaneStats{
			"rubinot": {Due: 1000, Succeeded: 995, Failed: 5},
			"mystian": {Due: 250, Succeeded: 245, Failed: 3, Skipped: 2},
		},
		Suspended: []string{"Lost"},
	}
	want := "**Scrape run finished** (42m0s)\n" +
		"1,250 due: 1,240 ok, 8 failed, 2 skipped\n" +
		"- mystian: 245/250 ok, 3 failed, 2 skipped\n" +
		"- rubinot: 995/1000 ok, 5 failed\n" +
		"Failures: network_error=3, not_found=5\n" +
		"Suspended: Lost"
	require.Equal(t, want, FormatReport(r))
}
