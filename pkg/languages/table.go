package languages

// Language names from http://en.wikipedia.org/wiki/List_of_ISO_639-1_codes.
// English comes first, the rest are sorted by code.
var defaultEntries = []Entry{
	{Code: "en", Name: "English"},
	{Code: "ar", Name: "اَلْعَرَبِيَّةُ", Direction: RTL},
	{Code: "ca", Name: "Català"},
	{Code: "cs", Name: "Čeština"},
	{Code: "da", Name: "Dansk"},
	{Code: "de", Name: "Deutsch"},
	{Code: "el", Name: "Ελληνικά"},
	{Code: "es", Name: "Español"},
	{Code: "eu", Name: "Euskara"},
	{Code: "fa", Name: "فارسی", Direction: RTL},
	{Code: "fi", Name: "Suomi"},
	{Code: "fr", Name: "Français"},
	{Code: "gl", Name: "Galego"},
	{Code: "he", Name: "עברית", Direction: RTL},
	{Code: "hu", Name: "Magyar"},
	{Code: "it", Name: "Italiano"},
	{Code: "ja", Name: "日本語"},
	{Code: "ko", Name: "한국어"},
	{Code: "lt", Name: "Lietuvių"},
	{Code: "nb_NO", Name: "Norsk bokmål"},
	{Code: "nl", Name: "Nederlands"},
	{Code: "pl", Name: "Polski"},
	{Code: "pt", Name: "Português"},
	{Code: "pt_BR", Name: "Português (Brasil)"},
	{Code: "ro", Name: "Română"},
	{Code: "ru", Name: "Русский"},
	{Code: "sv", Name: "Svenska"},
	{Code: "uk", Name: "Українська"},
	{Code: "vi", Name: "Tiếng Việt"},
	{Code: "zh_CN", Name: "中文 (简体)"},
	{Code: "zh_TW", Name: "中文 (繁體)"},
}

// Default returns the registry of languages the frontend is translated into.
func Default() *Registry {
	r, err := New(defaultEntries...)
	if err != nil {
		// defaultEntries is a constant table
		panic(err)
	}
	return r
}
