// Package statusreport builds reliability reports from public status pages.
//
// Quick start:
//
//	c, err := statusreport.New(statusreport.WithStorePath("statusreport.db"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	report, err := c.Report(ctx, statusreport.Request{
//	    Company: "Acme",
//	    URL:     "https://status.acme.com",
//	    Start:   time.Now().AddDate(0, -6, 0),
//	    End:     time.Now(),
//	})
//
// Without an API key the client classifies with the built-in keyword
// library. With one, categories and classifications come from the
// configured AI provider and fall back to the library on failure; the
// report's Degraded flag says when that happened.
//
// A Client is safe for concurrent use.
package statusreport
