package types

import "errors"

// The engine's error taxonomy. Every failure an operation can surface wraps
// exactly one of these sentinels, so callers distinguish kinds with
// errors.Is instead of string matching. The API layer maps each kind to a
// stable code via Code.
var (
	// Input validation.
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotAuthorized   = errors.New("caller is not authorized")

	// Market lifecycle.
	ErrMarketAlreadyExists   = errors.New("market already exists")
	ErrMarketDoesNotExist    = errors.New("market does not exist")
	ErrMarketAlreadyResolved = errors.New("market already resolved")
	ErrMarketNotYetResolved  = errors.New("market not yet resolved")

	// Economic validation.
	ErrAmountCannotBeZero     = errors.New("stake amount cannot be zero")
	ErrStakeTooSmall          = errors.New("stake below minimum")
	ErrInsufficientSwapAmount = errors.New("swap output too small to derive a stake")
	ErrInsufficientFunds      = errors.New("insufficient balance")

	// Oracle.
	ErrStalePrice        = errors.New("no oracle price within staleness window")
	ErrPriceFeedNotFound = errors.New("price feed not found")

	// Claims.
	ErrTicketDoesNotExist   = errors.New("ticket does not exist")
	ErrCallerNotTicketOwner = errors.New("caller does not own ticket")
	ErrIncorrectPrediction  = errors.New("ticket predicted the losing outcome")
	ErrRewardAlreadyClaimed = errors.New("reward already claimed")

	// Settlement.
	ErrPayoutCalculation    = errors.New("payout calculation failed")
	ErrRewardTransferFailed = errors.New("reward transfer failed")

	// Hook adapter. Malformed payloads are normally skipped, not surfaced;
	// this kind appears only when the adapter runs in strict mode.
	ErrInvalidHookData = errors.New("malformed hook payload")
)

// codes maps each sentinel to its wire code, checked in order.
var codes = []struct {
	err  error
	code string
}{
	{ErrInvalidArgument, "INVALID_ARGUMENT"},
	{ErrNotAuthorized, "NOT_AUTHORIZED"},
	{ErrMarketAlreadyExists, "MARKET_ALREADY_EXISTS"},
	{ErrMarketDoesNotExist, "MARKET_DOES_NOT_EXIST"},
	{ErrMarketAlreadyResolved, "MARKET_ALREADY_RESOLVED"},
	{ErrMarketNotYetResolved, "MARKET_NOT_YET_RESOLVED"},
	{ErrAmountCannotBeZero, "AMOUNT_CANNOT_BE_ZERO"},
	{ErrStakeTooSmall, "STAKE_TOO_SMALL"},
	{ErrInsufficientSwapAmount, "INSUFFICIENT_SWAP_AMOUNT"},
	{ErrInsufficientFunds, "INSUFFICIENT_FUNDS"},
	{ErrStalePrice, "STALE_PRICE"},
	{ErrPriceFeedNotFound, "PRICE_FEED_NOT_FOUND"},
	{ErrTicketDoesNotExist, "TICKET_DOES_NOT_EXIST"},
	{ErrCallerNotTicketOwner, "CALLER_NOT_TICKET_OWNER"},
	{ErrIncorrectPrediction, "INCORRECT_PREDICTION"},
	{ErrRewardAlreadyClaimed, "REWARD_ALREADY_CLAIMED"},
	{ErrPayoutCalculation, "PAYOUT_CALCULATION_ERROR"},
	{ErrRewardTransferFailed, "REWARD_TRANSFER_FAILED"},
	{ErrInvalidHookData, "INVALID_HOOK_DATA"},
}

// Code returns the stable wire code for an error's kind, or "INTERNAL" when
// the error does not wrap any sentinel from the taxonomy.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "INTERNAL"
}
