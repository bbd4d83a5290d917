// Package file implements chunked file transfer between peers.
//
// # Overview
//
// A transfer starts with an offer describing the file: name, size, MIME
// type, and how many fixed-size chunks it will arrive in. Nothing flows
// until the recipient accepts; a rejection or thirty seconds of silence
// discards the offer on the sending side. Accepted files are streamed as
// base64-encoded chunks of up to 1024 raw bytes, each delivered through
// the acknowledged-send machinery. The recipient collects chunks by index,
// tolerating duplicates and reordering, and writes the assembled file into
// the download directory the instant every index is present. A completion
// message then releases the sender's bookkeeping.
//
// # Offering
//
//	mgr := file.NewManager(file.Config{
//		SelfID:    "alice@192.168.1.10",
//		Port:      50999,
//		Authority: authority,
//		Peers:     peers,
//		Sender:    sender,
//		Transport: udp,
//	})
//	fileID, err := mgr.Offer(ctx, "bob@192.168.1.11", "photo.jpg", "Vacation photo")
//	if err != nil {
//		log.Fatal(err)
//	}
//
// The call returns once the offer is acknowledged; waiting for the
// decision and streaming the chunks happen on a background goroutine per
// transfer, so concurrent offers do not serialize.
//
// # Receiving
//
//	mgr.OnOffer(func(offer file.IncomingOffer) {
//		fmt.Printf("%s offers %s (%d bytes)\n", offer.From, offer.Filename, offer.Size)
//	})
//	mgr.OnReceived(func(fileID, path, from string) {
//		fmt.Printf("saved %s from %s\n", path, from)
//	})
//	err := mgr.Accept(ctx, fileID)
//
// Assembled files land in DownloadDir named <unix-timestamp>_<basename>;
// the offered filename is flattened to its base component first.
//
// # Loss
//
// A chunk that exhausts its acknowledgement budget is retried once more
// and then abandoned. The receiver never times out a collecting transfer
// on its own; an incomplete file simply never assembles, and the sender's
// record is reaped once the completion window lapses.
package file
