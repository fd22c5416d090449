// Package device drives a register-mapped cryptographic accelerator such as
// the CW305 AES-128 FPGA target.
//
// A Session walks the device through a fixed lifecycle:
//
//	Disconnected -> Connected -> Programmed -> Ready -> Triggered -> Done
//
// Any transport failure, completion timeout or cancellation drops the session
// back to Disconnected.
//
// # Running a Block
//
//	sess, err := device.NewSession(transport, device.Config{
//		Registers: device.CW305AES128(),
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer sess.Disconnect()
//
//	key, _ := sess.Registers().Lookup(device.RegKey)
//	err = sess.WriteOperand(ctx, key, device.ToLittleEndianPlacement(keyBytes))
//
// # Byte Order
//
// Transports place the first byte of a buffer at the lowest register address.
// Keys and blocks are conventionally written most-significant byte first, so
// callers reverse them with ToLittleEndianPlacement before writing and undo
// it with FromLittleEndianPlacement after reading. The session does not
// reorder bytes.
//
// # Completion
//
// The reference bitstream raises no completion flag. FixedDelay waits a
// calibrated time and trusts the device to be done; if it is not, the result
// read returns stale data without any error. Bitstreams that expose a done
// register should use PollFlag instead.
package device
