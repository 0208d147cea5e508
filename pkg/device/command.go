package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/qmi-protocol/qmi-go/pkg/cursor"
	"github.com/qmi-protocol/qmi-go/pkg/registry"
	"github.com/qmi-protocol/qmi-go/pkg/transaction"
	"github.com/qmi-protocol/qmi-go/pkg/wire"
)

// AbortBuilder builds the request that asks the modem to abort the
// transaction txid.
type AbortBuilder func(txid uint16) (*wire.Message, error)

const tlvAbortTransaction uint8 = 0x01

// AbortMessage returns the AbortBuilder for a client of service. Only NAS
// and WDS define an abort request; other services get nil.
func AbortMessage(service wire.Service, cid uint8) AbortBuilder {
	var id uint16
	switch service {
	case wire.ServiceNAS:
		id = wire.MessageNASAbort
	case wire.ServiceWDS:
		id = wire.MessageWDSAbort
	default:
		return nil
	}
	return func(txid uint16) (*wire.Message, error) {
		w := cursor.NewWriter()
		if err := w.WriteU16(txid, cursor.LittleEndian); err != nil {
			return nil, err
		}
		return wire.NewRequest(service, cid, id, wire.TLV{Type: tlvAbortTransaction, Value: w.Bytes()})
	}
}

// Command sends a request and waits for its response. The transaction id
// in msg is replaced. timeout zero waits indefinitely. If ctx ends first
// the transaction is cancelled locally and the modem is not told.
//
// The response is returned as received; a failure result TLV is not turned
// into an error here.
func (d *Device) Command(ctx context.Context, msg *wire.Message, timeout time.Duration) (*wire.Message, error) {
	tx, err := d.submit(ctx, msg, timeout, false)
	if err != nil {
		return nil, err
	}
	return tx.Wait(ctx)
}

// CommandAbortable is Command for long-running requests the modem can
// abort. When ctx ends before the response, the request built by abort is
// sent and the original transaction is resolved by the outcome:
//
//   - the original response arrives first: it is returned as usual
//   - the abort is confirmed: the error wraps transaction.ErrAborted
//   - the abort fails or times out: the error wraps both
//     transaction.ErrAborted and transaction.ErrAbortFailed
//
// A confirmed abort does not guarantee the modem undid any side effects.
// A nil abort behaves like Command.
func (d *Device) CommandAbortable(ctx context.Context, msg *wire.Message, timeout time.Duration, abort AbortBuilder) (*wire.Message, error) {
	tx, err := d.submit(ctx, msg, timeout, false)
	if err != nil {
		return nil, err
	}

	select {
	case <-tx.Done():
		return tx.Result()
	case <-ctx.Done():
	}
	cause := context.Cause(ctx)

	if abort == nil {
		tx.Cancel(cause)
		<-tx.Done()
		return tx.Result()
	}
	req, err := abort(tx.ID())
	if err != nil {
		tx.Cancel(fmt.Errorf("%w: build abort: %w", transaction.ErrAbortFailed, err))
		<-tx.Done()
		return tx.Result()
	}

	// The caller's context is already done; the abort runs on its own
	// deadline.
	abortCtx, cancel := context.WithTimeout(context.Background(), d.cfg.AbortTimeout)
	defer cancel()
	abortTx, err := d.submit(abortCtx, req, d.cfg.AbortTimeout, false)
	if err != nil {
		tx.Cancel(fmt.Errorf("%w: %w", transaction.ErrAbortFailed, err))
		<-tx.Done()
		return tx.Result()
	}

	select {
	case <-tx.Done():
		abortTx.Cancel(errors.New("original transaction completed first"))
		return tx.Result()
	case <-abortTx.Done():
	}

	resp, aerr := abortTx.Result()
	if aerr == nil {
		aerr = resp.Result()
	}
	if aerr == nil {
		tx.Abort(cause)
		d.logger.Debug("transaction aborted by modem", "txid", tx.ID(), "service", tx.Key().Service.String())
	} else {
		tx.Cancel(fmt.Errorf("%w: %w", transaction.ErrAbortFailed, aerr))
		d.logger.Warn("abort not confirmed", "txid", tx.ID(), "service", tx.Key().Service.String(), "error", aerr)
	}
	<-tx.Done()
	return tx.Result()
}

// submit registers a transaction for msg and hands the frame to the
// writer. Handshake requests issued by Open pass opening.
func (d *Device) submit(ctx context.Context, msg *wire.Message, timeout time.Duration, opening bool) (*transaction.Transaction, error) {
	switch s := d.State(); {
	case s == StateOpen:
	case s == StateOpening && opening:
	default:
		return nil, fmt.Errorf("%w: %s is %s", ErrNotOpen, d.name, s)
	}
	if !msg.IsRequest() {
		return nil, fmt.Errorf("%w: %s", ErrNotRequest, msg)
	}
	svc, cid := msg.Service(), msg.ClientID()
	if !d.registry.Routable(svc, cid) {
		return nil, fmt.Errorf("%w: %s/%d", registry.ErrUnknownClient, svc, cid)
	}
	d.checkVersion(svc)

	tx, err := d.table.Submit(transaction.Key{Service: svc, ClientID: cid}, timeout)
	if err != nil {
		return nil, err
	}
	out, err := msg.WithTransactionID(tx.ID())
	if err != nil {
		tx.Cancel(err)
		return nil, err
	}
	if err := d.send(ctx, out); err != nil {
		tx.Cancel(err)
		return nil, fmt.Errorf("send %s: %w", msg.Name(), err)
	}
	return tx, nil
}

// checkVersion logs requests for services the modem did not report. It
// never refuses them.
func (d *Device) checkVersion(svc wire.Service) {
	d.versionMu.RLock()
	versions := d.versions
	d.versionMu.RUnlock()
	if versions == nil || svc == wire.ServiceCTL {
		return
	}
	for _, v := range versions {
		if v.Service == svc {
			return
		}
	}
	d.logger.Debug("service not reported in version info", "service", svc.String())
}
