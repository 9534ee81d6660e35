package host

import (
	"context"
	"crypto/sha256"
	"fmt"

	"coldtap/internal/domain"
)

// do runs cmd and asserts the response type.
func do[T domain.Response](c *Client, ctx context.Context, cmd domain.Command) (T, error) {
	var zero T
	resp, err := c.Do(ctx, cmd)
	if err != nil {
		return zero, err
	}
	typed, ok := resp.(T)
	if !ok {
		return zero, fmt.Errorf("%w: got %T", ErrBadReply, resp)
	}
	return typed, nil
}

// Info queries device status.
func (c *Client) Info(ctx context.Context) (domain.Info, error) {
	return do[domain.Info](c, ctx, domain.GetInfo{})
}

// GenerateMnemonic provisions a fresh wallet and returns the mnemonic the
// device displayed.
func (c *Client) GenerateMnemonic(ctx context.Context, words int, network domain.Network, passphrase string) (string, error) {
	r, err := do[domain.MnemonicWords](c, ctx, domain.GenerateMnemonic{
		Words: words, Network: network, Passphrase: passphrase,
	})
	return r.Mnemonic, err
}

// RestoreMnemonic provisions a wallet from an existing mnemonic.
func (c *Client) RestoreMnemonic(ctx context.Context, mnemonic string, network domain.Network, passphrase string) error {
	_, err := do[domain.Ok](c, ctx, domain.RestoreMnemonic{
		Mnemonic: mnemonic, Network: network, Passphrase: passphrase,
	})
	return err
}

// ShowMnemonic asks the device to reveal the mnemonic after confirmation.
func (c *Client) ShowMnemonic(ctx context.Context) (string, error) {
	r, err := do[domain.MnemonicWords](c, ctx, domain.ShowMnemonic{})
	return r.Mnemonic, err
}

// Unlock decrypts the wallet secret on the device.
func (c *Client) Unlock(ctx context.Context, passphrase string) error {
	_, err := do[domain.Ok](c, ctx, domain.Unlock{Passphrase: passphrase})
	return err
}

// Lock drops the device's working-memory secret.
func (c *Client) Lock(ctx context.Context) error {
	_, err := do[domain.Ok](c, ctx, domain.Lock{})
	return err
}

// Resume reports the pending multi-step operation, or "".
func (c *Client) Resume(ctx context.Context) (string, error) {
	r, err := do[domain.ResumeInfo](c, ctx, domain.Resume{})
	return r.Pending, err
}

// Address asks the device to display and return the receive address at index.
func (c *Client) Address(ctx context.Context, index uint32) (string, error) {
	r, err := do[domain.AddressReply](c, ctx, domain.DisplayAddress{Index: index})
	return r.Address, err
}

// SignPsbt runs the two-step signing flow and returns the updated PSBT.
func (c *Client) SignPsbt(ctx context.Context, psbt []byte) ([]byte, error) {
	if _, err := do[domain.Ok](c, ctx, domain.BeginSignPsbt{}); err != nil {
		return nil, err
	}
	r, err := do[domain.SignedPsbt](c, ctx, domain.SignPsbt{Psbt: psbt})
	return r.Psbt, err
}

// Descriptors fetches the watch-only wallet descriptors.
func (c *Client) Descriptors(ctx context.Context) (external, internal string, err error) {
	r, err := do[domain.DescriptorsReply](c, ctx, domain.PublicDescriptors{})
	return r.External, r.Internal, err
}

// Xpub derives an extended public key with its attestation record.
func (c *Client) Xpub(ctx context.Context, path string) (string, domain.BsmsRound1, error) {
	r, err := do[domain.XpubReply](c, ctx, domain.GetXpub{Path: path})
	return r.Xpub, r.Bsms, err
}

// SetDescriptor applies a wallet descriptor on the device.
func (c *Client) SetDescriptor(ctx context.Context, descriptor, firstAddress string) error {
	_, err := do[domain.Ok](c, ctx, domain.SetDescriptor{
		Descriptor: descriptor, FirstAddress: firstAddress,
	})
	return err
}

// UpdateFirmware streams an image in chunks sized to the channel, resuming
// from whatever offset the device reports.
func (c *Client) UpdateFirmware(ctx context.Context, image []byte, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = 1024
	}
	sum := sha256.Sum256(image)
	progress, err := do[domain.FwProgress](c, ctx, domain.FwUpdateStart{
		Size: uint32(len(image)), Checksum: sum[:],
	})
	if err != nil {
		return err
	}
	offset := progress.NextOffset
	for int(offset) < len(image) {
		end := int(offset) + chunkSize
		if end > len(image) {
			end = len(image)
		}
		progress, err = do[domain.FwProgress](c, ctx, domain.FwUpdateChunk{
			Offset: offset, Data: image[offset:end],
		})
		if err != nil {
			return err
		}
		offset = progress.NextOffset
	}
	_, err = do[domain.Ok](c, ctx, domain.FwUpdateFinish{})
	return err
}

// Wipe erases the device. A successful wipe destroys the pairing the session
// is bound to, so the channel is closed; talking again requires Connect.
func (c *Client) Wipe(ctx context.Context) error {
	if _, err := do[domain.Ok](c, ctx, domain.Wipe{}); err != nil {
		return err
	}
	c.ch.Close()
	c.ch = nil
	return nil
}
