package eve

import (
	"context"
	"fmt"
	"strings"
	"testing"

	. "github.com/onsi/gomega"
	"github.com/spf13/afero"

	"minisiem/internal/filter"
	"minisiem/pkg/models"
)

const evePath = "/var/log/suricata/eve.json"

func memFile(t *testing.T, content string) (*File, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	if content != "" {
		if err := afero.WriteFile(fs, evePath, []byte(content), 0644); err != nil {
			t.Fatalf("write eve file: %v", err)
		}
	}
	return NewFile(Config{Path: evePath, FS: fs}), fs
}

func TestReadBacklogDeliversAlertsInFileOrder(t *testing.T) {
	g := NewGomegaWithT(t)

	var b strings.Builder
	for i := 0; i < 25; i++ {
		kind := "flow"
		if i%3 == 0 {
			kind = "alert"
		}
		fmt.Fprintf(&b, `{"event_type":%q,"seq":%d}`+"\n", kind, i)
	}
	f, _ := memFile(t, b.String())

	var alerts []models.Event
	stats, err := f.ReadBacklog(context.Background(), func(ev models.Event) {
		if filter.OnlyAlerts(ev) {
			alerts = append(alerts, ev)
		}
	})
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(stats.Lines).To(Equal(25))
	g.Expect(stats.Events).To(Equal(25))
	g.Expect(alerts).To(HaveLen(9))
	for i, ev := range alerts {
		g.Expect(fmt.Sprint(ev["seq"])).To(Equal(fmt.Sprint(i * 3)))
	}
	g.Expect(f.Offset()).To(Equal(int64(b.Len())))
}

func TestReadBacklogMissingFileIsNotAnError(t *testing.T) {
	g := NewGomegaWithT(t)
	f, _ := memFile(t, "")

	called := false
	stats, err := f.ReadBacklog(context.Background(), func(models.Event) { called = true })
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(stats).To(Equal(BacklogStats{}))
	g.Expect(called).To(BeFalse())
	g.Expect(f.opened()).To(BeFalse())
}

func TestReadBacklogSkipsMalformedAndBlankLines(t *testing.T) {
	g := NewGomegaWithT(t)
	content := strings.Join([]string{
		`{"event_type":"alert","seq":1}`,
		``,
		`   `,
		`{"event_type":"alert",`,
		`not json at all`,
		`[1,2,3]`,
		`null`,
		"{\"event_type\":\"alert\",\"payload\":\"bad\xffbyte\"}",
	}, "\n") + "\n"
	f, _ := memFile(t, content)

	var got []models.Event
	stats, err := f.ReadBacklog(context.Background(), func(ev models.Event) { got = append(got, ev) })
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(stats.Lines).To(Equal(6))
	g.Expect(stats.Malformed).To(Equal(4))
	g.Expect(got).To(HaveLen(2))
	g.Expect(got[1]["payload"]).To(Equal("bad\uFFFDbyte"))
}

func TestReadBacklogKeepsLargeIntegersExact(t *testing.T) {
	g := NewGomegaWithT(t)
	f, _ := memFile(t, `{"event_type":"alert","flow_id":1234567890123456789}`+"\n")

	var got models.Event
	_, err := f.ReadBacklog(context.Background(), func(ev models.Event) { got = ev })
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(fmt.Sprint(got["flow_id"])).To(Equal("1234567890123456789"))
}

func TestReadBacklogLeavesUnfinishedTailPending(t *testing.T) {
	g := NewGomegaWithT(t)
	content := `{"event_type":"alert","seq":1}` + "\n" + `{"event_type":"alert","se`
	f, _ := memFile(t, content)

	var got []models.Event
	stats, err := f.ReadBacklog(context.Background(), func(ev models.Event) { got = append(got, ev) })
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(got).To(HaveLen(1))
	g.Expect(stats.Malformed).To(Equal(0))
	g.Expect(string(f.pending)).To(Equal(`{"event_type":"alert","se`))
	g.Expect(f.Offset()).To(Equal(int64(len(content))))
}

func TestReadBacklogAcceptsCompleteUnterminatedTail(t *testing.T) {
	g := NewGomegaWithT(t)
	f, _ := memFile(t, `{"event_type":"alert","seq":1}`+"\n"+`{"event_type":"alert","seq":2}`)

	var got []models.Event
	_, err := f.ReadBacklog(context.Background(), func(ev models.Event) { got = append(got, ev) })
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(got).To(HaveLen(2))
	g.Expect(f.pending).To(BeEmpty())
}

func TestReadBacklogSkipsLinesWithTrailingJunk(t *testing.T) {
	g := NewGomegaWithT(t)
	f, _ := memFile(t,
		`{"event_type":"alert","seq":1}}`+"\n"+
			`{"event_type":"alert","seq":2}]`+"\n"+
			`{"event_type":"alert","seq":3}`+"\n"+
			`{"event_type":"alert","seq":4}}`)

	var got []models.Event
	stats, err := f.ReadBacklog(context.Background(), func(ev models.Event) { got = append(got, ev) })
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(got).To(HaveLen(1))
	g.Expect(fmt.Sprint(got[0]["seq"])).To(Equal("3"))
	g.Expect(stats.Malformed).To(Equal(2))
	g.Expect(string(f.pending)).To(Equal(`{"event_type":"alert","seq":4}}`))
}
