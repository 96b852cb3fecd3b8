package responders

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"net/smtp"
	"sync"

	"github.com/corona10/goimagehash"
	"github.com/jordan-wright/email"
	"github.com/nfnt/resize"
	"github.com/rs/zerolog"

	"github.com/nvrengine/core/config"
	"github.com/nvrengine/core/videotoolkit"
)

// objectActivity tracks one rule+camera+object's sighting window for
// the email-dedup rules in EmailSender.ShouldNotify.
type objectActivity struct {
	firstMs    int64
	lastMs     int64
	lastEmail  int64
	everEmaild bool
}

// EmailSender implements the "email" response protocol: one MIME
// message with a single representative-frame thumbnail, subject to the
// dedup/merge rules for bursty detections from the same object.
type EmailSender struct {
	Toolkit videotoolkit.VideoToolkit
	SMTP    config.SMTPSettings
	Log     zerolog.Logger

	mu       sync.Mutex
	activity map[string]*objectActivity // key: camera\x00rule\x00objUID

	lastThumbHash   map[string]*goimagehash.ImageHash // key: camera\x00rule
	lastThumbSentMs map[string]int64
}

func activityKey(camera, rule string, objUID int64) string {
	return fmt.Sprintf("%s\x00%s\x00%d", camera, rule, objUID)
}

// ShouldNotify applies the three dedup rules: never
// within 2s of first appearance, re-notify only after 10s of
// continuous presence since the last email, and forget objects unseen
// for 30s (the caller is responsible for calling Prune on a timer).
func (e *EmailSender) ShouldNotify(camera, rule string, objUID, firstMs, lastMs, nowMs int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.activity == nil {
		e.activity = map[string]*objectActivity{}
	}

	key := activityKey(camera, rule, objUID)
	a, ok := e.activity[key]
	if !ok {
		a = &objectActivity{firstMs: firstMs}
		e.activity[key] = a
	}
	a.lastMs = lastMs

	if nowMs-a.firstMs < 2000 {
		return false
	}
	if a.everEmaild && nowMs-a.lastEmail < 10000 {
		return false
	}

	a.lastEmail = nowMs
	a.everEmaild = true
	return true
}

// Prune forgets objects unseen for more than 30s as of nowMs.
func (e *EmailSender) Prune(nowMs int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for k, a := range e.activity {
		if nowMs-a.lastMs > 30000 {
			delete(e.activity, k)
		}
	}
}

// PendingNotification is one not-yet-sent email candidate, identified
// by the union of objects it covers and their combined time span.
type PendingNotification struct {
	ObjList []int64
	FirstMs int64
	LastMs  int64
}

// overlapRatio computes 2*overlap/(len1+len2).
func overlapRatio(a, b PendingNotification) float64 {
	lo := a.FirstMs
	if b.FirstMs > lo {
		lo = b.FirstMs
	}
	hi := a.LastMs
	if b.LastMs < hi {
		hi = b.LastMs
	}
	overlap := hi - lo
	if overlap < 0 {
		overlap = 0
	}
	lenA := a.LastMs - a.FirstMs
	lenB := b.LastMs - b.FirstMs
	if lenA+lenB == 0 {
		return 0
	}
	return 2 * float64(overlap) / float64(lenA+lenB)
}

// MergeOverlappingNotifications merges candidates whose coverage
// overlaps by at least 70%, unioning their object lists. Unlike
// CombineOverlappingClips, order doesn't encode adjacency here, so
// every pair is checked rather than just neighbors.
func MergeOverlappingNotifications(in []PendingNotification) []PendingNotification {
	out := append([]PendingNotification{}, in...)
	merged := true
	for merged {
		merged = false
		for i := 0; i < len(out); i++ {
			for j := i + 1; j < len(out); j++ {
				if overlapRatio(out[i], out[j]) < 0.7 {
					continue
				}
				out[i] = mergeNotifications(out[i], out[j])
				out = append(out[:j], out[j+1:]...)
				merged = true
				break
			}
			if merged {
				break
			}
		}
	}
	return out
}

func mergeNotifications(a, b PendingNotification) PendingNotification {
	seen := make(map[int64]bool, len(a.ObjList)+len(b.ObjList))
	var objList []int64
	for _, o := range append(append([]int64{}, a.ObjList...), b.ObjList...) {
		if !seen[o] {
			seen[o] = true
			objList = append(objList, o)
		}
	}
	first, last := a.FirstMs, a.LastMs
	if b.FirstMs < first {
		first = b.FirstMs
	}
	if b.LastMs > last {
		last = b.LastMs
	}
	return PendingNotification{ObjList: objList, FirstMs: first, LastMs: last}
}

// Send builds and delivers the email: a MIME message with a resized
// thumbnail grabbed from clipPath at previewMs. If the thumbnail is a
// near-duplicate (by pHash) of the last one sent for this camera+rule
// within the last minute, it is omitted to avoid attaching the same
// image repeatedly during a long-running trigger.
func (e *EmailSender) Send(camera, rule string, settings struct {
	ToAddrs []string
	Subject string
}, clipPath string, previewMs, nowMs int64, body string) error {
	em := email.NewEmail()
	em.From = e.SMTP.From
	em.To = settings.ToAddrs
	em.Subject = settings.Subject
	em.Text = []byte(body)

	thumb, hash, err := e.grabThumbnail(clipPath, previewMs)
	if err != nil {
		e.Log.Warn().Err(err).Str("clip", clipPath).Msg("could not grab email thumbnail, sending without one")
	} else if thumb != nil && !e.isRecentDuplicate(camera, rule, hash, nowMs) {
		if _, err := em.Attach(bytes.NewReader(thumb), "preview.jpg", "image/jpeg"); err != nil {
			e.Log.Warn().Err(err).Msg("attaching thumbnail failed")
		}
		e.recordThumbnail(camera, rule, hash, nowMs)
	}

	addr := fmt.Sprintf("%s:%d", e.SMTP.Host, e.SMTP.Port)
	auth := smtp.PlainAuth("", e.SMTP.Username, e.SMTP.Password, e.SMTP.Host)
	return em.Send(addr, auth)
}

func (e *EmailSender) grabThumbnail(clipPath string, previewMs int64) ([]byte, *goimagehash.ImageHash, error) {
	if e.Toolkit == nil {
		return nil, nil, nil
	}
	reader, err := e.Toolkit.OpenClipReader(context.Background(), clipPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening clip reader: %w", err)
	}
	defer reader.Close()

	if err := reader.Seek(previewMs); err != nil {
		return nil, nil, fmt.Errorf("seeking to preview frame: %w", err)
	}
	raw, err := reader.GetNextFrame()
	if err != nil {
		return nil, nil, fmt.Errorf("grabbing preview frame: %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, nil, fmt.Errorf("decoding preview frame: %w", err)
	}

	thumb := resize.Resize(320, 0, img, resize.Lanczos3)
	var buf bytes.Buffer
	if err := jpegEncode(&buf, thumb); err != nil {
		return nil, nil, fmt.Errorf("encoding thumbnail: %w", err)
	}

	hash, err := goimagehash.PerceptionHash(thumb)
	if err != nil {
		hash = nil
	}
	return buf.Bytes(), hash, nil
}

func jpegEncode(buf *bytes.Buffer, img image.Image) error {
	return jpeg.Encode(buf, img, &jpeg.Options{Quality: 85})
}

func (e *EmailSender) isRecentDuplicate(camera, rule string, hash *goimagehash.ImageHash, nowMs int64) bool {
	if hash == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	key := camera + "\x00" + rule
	prev, ok := e.lastThumbHash[key]
	if !ok {
		return false
	}
	if nowMs-e.lastThumbSentMs[key] > 60000 {
		return false
	}
	dist, err := hash.Distance(prev)
	if err != nil {
		return false
	}
	return dist < 4
}

func (e *EmailSender) recordThumbnail(camera, rule string, hash *goimagehash.ImageHash, nowMs int64) {
	if hash == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastThumbHash == nil {
		e.lastThumbHash = map[string]*goimagehash.ImageHash{}
		e.lastThumbSentMs = map[string]int64{}
	}
	key := camera + "\x00" + rule
	e.lastThumbHash[key] = hash
	e.lastThumbSentMs[key] = nowMs
}
