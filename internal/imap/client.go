package imap

import (
	"context"
	"fmt"

	goimap "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/nlebec/cmsync/internal/config"
	"go.uber.org/zap"
)

var _ Transport = (*Client)(nil)

// Client implements Transport over a single go-imap connection. One
// connection means one SELECTed folder at a time, which matches the
// scheduler's fully serialized operation queue.
type Client struct {
	c        *imapclient.Client
	logger   *zap.Logger
	selected string
}

// Dial connects and authenticates against the configured message store.
func Dial(cfg config.ImapConfig, logger *zap.Logger) (*Client, error) {
	var c *imapclient.Client
	var err error
	if cfg.TLS {
		c, err = imapclient.DialTLS(cfg.Address, nil)
	} else {
		c, err = imapclient.DialInsecure(cfg.Address, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Address, err)
	}
	if err := c.Login(cfg.Username, cfg.Password).Wait(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("login: %w", err)
	}
	logger.Info("connected to message store", zap.String("address", cfg.Address))
	return &Client{c: c, logger: logger}, nil
}

// Select opens a folder with CONDSTORE, creating it if absent.
func (t *Client) Select(_ context.Context, folder string) (*SelectInfo, error) {
	opts := &goimap.SelectOptions{CondStore: true}
	data, err := t.c.Select(folder, opts).Wait()
	if err != nil {
		// First push to a conversation: the folder may not exist yet.
		if createErr := t.c.Create(folder, nil).Wait(); createErr != nil {
			return nil, fmt.Errorf("select %s: %w", folder, err)
		}
		data, err = t.c.Select(folder, opts).Wait()
		if err != nil {
			return nil, fmt.Errorf("select %s after create: %w", folder, err)
		}
	}
	t.selected = folder
	return &SelectInfo{
		UIDValidity:   data.UIDValidity,
		HighestModSeq: data.HighestModSeq,
		NumMessages:   data.NumMessages,
	}, nil
}

func (t *Client) ensureSelected(ctx context.Context, folder string) error {
	if t.selected == folder {
		return nil
	}
	_, err := t.Select(ctx, folder)
	return err
}

// FetchChanged fetches UID+FLAGS+MODSEQ for messages changed since the
// given MODSEQ (CHANGEDSINCE), or for all messages when it is zero.
func (t *Client) FetchChanged(ctx context.Context, folder string, sinceModSeq uint64) ([]MessageInfo, error) {
	if err := t.ensureSelected(ctx, folder); err != nil {
		return nil, err
	}
	var set goimap.UIDSet
	set.AddRange(1, 0)
	opts := &goimap.FetchOptions{
		UID:          true,
		Flags:        true,
		ModSeq:       true,
		ChangedSince: sinceModSeq,
	}
	msgs, err := t.c.Fetch(set, opts).Collect()
	if err != nil {
		return nil, fmt.Errorf("fetch changed %s: %w", folder, err)
	}
	infos := make([]MessageInfo, 0, len(msgs))
	for _, m := range msgs {
		info := MessageInfo{UID: uint32(m.UID), ModSeq: m.ModSeq}
		for _, f := range m.Flags {
			info.Flags = append(info.Flags, Flag(f))
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// FetchBody fetches the full payload of one message.
func (t *Client) FetchBody(ctx context.Context, folder string, uid uint32) ([]byte, error) {
	if err := t.ensureSelected(ctx, folder); err != nil {
		return nil, err
	}
	opts := &goimap.FetchOptions{
		UID:         true,
		BodySection: []*goimap.FetchItemBodySection{{}},
	}
	msgs, err := t.c.Fetch(goimap.UIDSetNum(goimap.UID(uid)), opts).Collect()
	if err != nil {
		return nil, fmt.Errorf("fetch body %s uid %d: %w", folder, uid, err)
	}
	for _, m := range msgs {
		for _, buf := range m.BodySection {
			return buf.Bytes, nil
		}
	}
	return nil, fmt.Errorf("fetch body %s uid %d: no body returned", folder, uid)
}

// Append uploads a payload and returns the server-assigned UID.
func (t *Client) Append(_ context.Context, folder string, flags []Flag, payload []byte) (uint32, error) {
	opts := &goimap.AppendOptions{}
	for _, f := range flags {
		opts.Flags = append(opts.Flags, goimap.Flag(f))
	}
	cmd := t.c.Append(folder, int64(len(payload)), opts)
	if _, err := cmd.Write(payload); err != nil {
		return 0, fmt.Errorf("append %s: %w", folder, err)
	}
	if err := cmd.Close(); err != nil {
		return 0, fmt.Errorf("append %s: %w", folder, err)
	}
	data, err := cmd.Wait()
	if err != nil {
		return 0, fmt.Errorf("append %s: %w", folder, err)
	}
	return uint32(data.UID), nil
}

// StoreFlags adds flags to one message, silently.
func (t *Client) StoreFlags(ctx context.Context, folder string, uid uint32, flags []Flag) error {
	if err := t.ensureSelected(ctx, folder); err != nil {
		return err
	}
	sf := &goimap.StoreFlags{Op: goimap.StoreFlagsAdd, Silent: true}
	for _, f := range flags {
		sf.Flags = append(sf.Flags, goimap.Flag(f))
	}
	// Store returns a fetch command even when Silent; Close drains any
	// untagged responses and reports the command status.
	if err := t.c.Store(goimap.UIDSetNum(goimap.UID(uid)), sf, nil).Close(); err != nil {
		return fmt.Errorf("store flags %s uid %d: %w", folder, uid, err)
	}
	return nil
}

// List enumerates all folder names.
func (t *Client) List(_ context.Context) ([]string, error) {
	boxes, err := t.c.List("", "*", nil).Collect()
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	names := make([]string, 0, len(boxes))
	for _, b := range boxes {
		names = append(names, b.Mailbox)
	}
	return names, nil
}

// Close logs out and closes the connection.
func (t *Client) Close() error {
	if err := t.c.Logout().Wait(); err != nil {
		return t.c.Close()
	}
	return nil
}
