package common

// Human-readable summaries posted to the counterparty on each transition.
// Messaging/chat renders these; the core never reads them back.
const (
	MsgProposalSent     = "A new deal proposal is waiting for your response."
	MsgCounterOffer     = "The terms were countered. Review the new version."
	MsgTermsAccepted    = "The terms were accepted. The deal is moving forward."
	MsgDealRejected     = "The deal was rejected."
	MsgInvoiceIssued    = "An invoice was issued and is awaiting payment."
	MsgFundsReserved    = "Funds have been reserved in escrow. Briefing can begin."
	MsgWorkStarted      = "Work on the deal has started."
	MsgDraftSubmitted   = "A draft was submitted and is awaiting review."
	MsgDraftAccepted    = "The draft was accepted."
	MsgChangesRequested = "Changes were requested on the submitted draft."
	MsgNextCycle        = "The draft was accepted. The next milestone cycle has started."
	MsgMilestonePaid    = "A milestone payout was released."
	MsgDisputeOpened    = "A dispute was opened on the deal."
)
