// Package wire implements the text protocol spoken by weighing controller
// firmware.
//
// Structured replies are a JSON object wrapped in literal '@' delimiters,
// served as text/plain:
//
//	@{"dev":"7001","ste":3,"val":12.5,"abo":0}@
//
// An empty body means "no decision, keep polling". A malformed request is
// answered with the fixed token @ERROR@ and HTTP 400. Keys are kept to
// three letters because the firmware parser matches them positionally.
package wire
