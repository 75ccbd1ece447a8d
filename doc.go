// Package dkimsign provides the message model used by the DKIM signer in
// the dkim subpackage.
//
// # Messages
//
// Parse a message received as raw bytes:
//
//	msg, err := dkimsign.Parse(raw)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Or build one:
//
//	msg, err := dkimsign.NewMessageBuilder().
//	    From("Sender <sender@example.com>").
//	    To("recipient@example.com").
//	    Subject("Hello").
//	    TextBody("Message content").
//	    Build()
//
// # Signing
//
//	signer, err := dkim.New(dkim.Config{
//	    PrivateKey: pemBody,
//	    Params: map[string]string{
//	        "d": "example.com",
//	        "h": "from:to:subject:date",
//	        "s": "sel1",
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := signer.SignMessage(msg); err != nil {
//	    log.Fatal(err)
//	}
//
// # Serialization
//
// Wire format:
//
//	raw := msg.Bytes()
//
// MessagePack:
//
//	data, err := msg.ToMessagePack()
//	msg, err := dkimsign.FromMessagePack(data)
package dkimsign
