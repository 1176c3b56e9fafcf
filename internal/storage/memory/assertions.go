package memory

import (
	"github.com/tinoosan/bookkeeper/internal/posting"
	"github.com/tinoosan/bookkeeper/internal/service/account"
	"github.com/tinoosan/bookkeeper/internal/service/asset"
	"github.com/tinoosan/bookkeeper/internal/service/budget"
	"github.com/tinoosan/bookkeeper/internal/service/journal"
	"github.com/tinoosan/bookkeeper/internal/service/partner"
	"github.com/tinoosan/bookkeeper/internal/service/tax"
	"github.com/tinoosan/bookkeeper/internal/service/taxreport"
)

// Compile-time interface assertions documenting which interfaces Store satisfies.
var (
	_ journal.Repo       = (*Store)(nil)
	_ journal.Writer     = (*Store)(nil)
	_ account.Repo       = (*Store)(nil)
	_ account.Writer     = (*Store)(nil)
	_ partner.Repo       = (*Store)(nil)
	_ partner.Writer     = (*Store)(nil)
	_ tax.Repo           = (*Store)(nil)
	_ tax.Writer         = (*Store)(nil)
	_ asset.Repo         = (*Store)(nil)
	_ asset.Writer       = (*Store)(nil)
	_ taxreport.Repo     = (*Store)(nil)
	_ taxreport.Writer   = (*Store)(nil)
	_ budget.Repo        = (*Store)(nil)
	_ budget.Writer      = (*Store)(nil)
	_ posting.LineSource = (*Store)(nil)
)
