// Package device implements a QMI control port.
//
// A Device owns one transport and runs three loops on it: a reader that
// decodes frames and routes them, a single writer fed by a queue, and a
// sweeper that expires overdue transactions. Responses are matched to
// pending transactions by service, client id and transaction id.
// Indications go to the subscribers registered with Subscribe or through a
// Client.
//
// Lifecycle:
//
//	CLOSED -> OPENING -> OPEN -> CLOSING -> CLOSED
//
// Open runs the handshakes selected by OpenFlags while OPENING. Close, a
// failed handshake or a transport hang-up all end in CLOSED; every pending
// transaction fails with ErrPortClosed and the client registry is cleared.
// A closed device cannot be reopened.
//
// Typical use:
//
//	tr, _ := transport.OpenFile("/dev/cdc-wdm0")
//	dev, _ := device.New(tr, device.DefaultConfig())
//	if err := dev.Open(ctx, device.OpenVersionInfo|device.OpenSync, 10*time.Second); err != nil {
//	    return err
//	}
//	defer dev.Close(context.Background())
//
//	dms, _ := dev.AllocateClient(ctx, wire.ServiceDMS, wire.CIDNone, 0)
//	resp, err := dms.Send(ctx, wire.MessageDMSGetManufacturer, 5*time.Second)
package device
