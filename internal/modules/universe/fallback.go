package universe

// compiledConstituents is the bootstrap membership used when no universe is
// stored yet and every remote source is down. It covers the largest index
// members; a successful refresh replaces it with the full list.
var compiledConstituents = []Constituent{
	{Symbol: "AAPL", Name: "Apple Inc.", Sector: "Technology"},
	{Symbol: "MSFT", Name: "Microsoft Corporation", Sector: "Technology"},
	{Symbol: "NVDA", Name: "NVIDIA Corporation", Sector: "Technology"},
	{Symbol: "AMZN", Name: "Amazon.com Inc.", Sector: "Consumer Cyclical"},
	{Symbol: "GOOGL", Name: "Alphabet Inc. Class A", Sector: "Communication Services"},
	{Symbol: "GOOG", Name: "Alphabet Inc. Class C", Sector: "Communication Services"},
	{Symbol: "META", Name: "Meta Platforms Inc.", Sector: "Communication Services"},
	{Symbol: "BRK-B", Name: "Berkshire Hathaway Inc. Class B", Sector: "Financial Services"},
	{Symbol: "TSLA", Name: "Tesla Inc.", Sector: "Consumer Cyclical"},
	{Symbol: "AVGO", Name: "Broadcom Inc.", Sector: "Technology"},
	{Symbol: "LLY", Name: "Eli Lilly and Company", Sector: "Healthcare"},
	{Symbol: "JPM", Name: "JPMorgan Chase & Co.", Sector: "Financial Services"},
	{Symbol: "UNH", Name: "UnitedHealth Group Incorporated", Sector: "Healthcare"},
	{Symbol: "XOM", Name: "Exxon Mobil Corporation", Sector: "Energy"},
	{Symbol: "V", Name: "Visa Inc.", Sector: "Financial Services"},
	{Symbol: "MA", Name: "Mastercard Incorporated", Sector: "Financial Services"},
	{Symbol: "PG", Name: "Procter & Gamble Company", Sector: "Consumer Defensive"},
	{Symbol: "JNJ", Name: "Johnson & Johnson", Sector: "Healthcare"},
	{Symbol: "COST", Name: "Costco Wholesale Corporation", Sector: "Consumer Defensive"},
	{Symbol: "HD", Name: "Home Depot Inc.", Sector: "Consumer Cyclical"},
	{Symbol: "ABBV", Name: "AbbVie Inc.", Sector: "Healthcare"},
	{Symbol: "WMT", Name: "Walmart Inc.", Sector: "Consumer Defensive"},
	{Symbol: "MRK", Name: "Merck & Co. Inc.", Sector: "Healthcare"},
	{Symbol: "KO", Name: "Coca-Cola Company", Sector: "Consumer Defensive"},
	{Symbol: "PEP", Name: "PepsiCo Inc.", Sector: "Consumer Defensive"},
	{Symbol: "BAC", Name: "Bank of America Corporation", Sector: "Financial Services"},
	{Symbol: "ORCL", Name: "Oracle Corporation", Sector: "Technology"},
	{Symbol: "CVX", Name: "Chevron Corporation", Sector: "Energy"},
	{Symbol: "CRM", Name: "Salesforce Inc.", Sector: "Technology"},
	{Symbol: "NFLX", Name: "Netflix Inc.", Sector: "Communication Services"},
	{Symbol: "AMD", Name: "Advanced Micro Devices Inc.", Sector: "Technology"},
	{Symbol: "ADBE", Name: "Adobe Inc.", Sector: "Technology"},
	{Symbol: "TMO", Name: "Thermo Fisher Scientific Inc.", Sector: "Healthcare"},
	{Symbol: "CSCO", Name: "Cisco Systems Inc.", Sector: "Technology"},
	{Symbol: "MCD", Name: "McDonald's Corporation", Sector: "Consumer Cyclical"},
	{Symbol: "ABT", Name: "Abbott Laboratories", Sector: "Healthcare"},
	{Symbol: "INTC", Name: "Intel Corporation", Sector: "Technology"},
	{Symbol: "DIS", Name: "Walt Disney Company", Sector: "Communication Services"},
	{Symbol: "WFC", Name: "Wells Fargo & Company", Sector: "Financial Services"},
	{Symbol: "QCOM", Name: "QUALCOMM Incorporated", Sector: "Technology"},
	{Symbol: "CAT", Name: "Caterpillar Inc.", Sector: "Industrials"},
	{Symbol: "IBM", Name: "International Business Machines", Sector: "Technology"},
	{Symbol: "GE", Name: "General Electric Company", Sector: "Industrials"},
	{Symbol: "TXN", Name: "Texas Instruments Incorporated", Sector: "Technology"},
	{Symbol: "VZ", Name: "Verizon Communications Inc.", Sector: "Communication Services"},
	{Symbol: "AMGN", Name: "Amgen Inc.", Sector: "Healthcare"},
	{Symbol: "PFE", Name: "Pfizer Inc.", Sector: "Healthcare"},
	{Symbol: "UNP", Name: "Union Pacific Corporation", Sector: "Industrials"},
	{Symbol: "NEE", Name: "NextEra Energy Inc.", Sector: "Utilities"},
	{Symbol: "PM", Name: "Philip Morris International Inc.", Sector: "Consumer Defensive"},
	{Symbol: "RTX", Name: "RTX Corporation", Sector: "Industrials"},
	{Symbol: "HON", Name: "Honeywell International Inc.", Sector: "Industrials"},
	{Symbol: "BA", Name: "Boeing Company", Sector: "Industrials"},
	{Symbol: "SPGI", Name: "S&P Global Inc.", Sector: "Financial Services"},
	{Symbol: "LOW", Name: "Lowe's Companies Inc.", Sector: "Consumer Cyclical"},
	{Symbol: "GS", Name: "Goldman Sachs Group Inc.", Sector: "Financial Services"},
	{Symbol: "LIN", Name: "Linde plc", Sector: "Basic Materials"},
	{Symbol: "AMT", Name: "American Tower Corporation", Sector: "Real Estate"},
	{Symbol: "SO", Name: "Southern Company", Sector: "Utilities"},
	{Symbol: "DUK", Name: "Duke Energy Corporation", Sector: "Utilities"},
}
