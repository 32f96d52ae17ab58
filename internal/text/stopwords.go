package text

// DefaultStopWords returns the Russian function words removed before stemming.
// A fresh map is returned on every call so callers may extend it.
func DefaultStopWords() map[string]struct{} {
	words := []string{
		"а", "без", "будет", "бы", "был", "была", "были", "было", "быть", "в", "вам", "вас",
		"вдруг", "ведь", "во", "вот", "все", "всех", "всю", "вы", "г", "где", "да", "даже",
		"для", "до", "его", "ее", "её", "ей", "ему", "если", "есть", "еще", "ещё", "ж", "же",
		"за", "зачем", "и", "из", "или", "им", "их", "к", "как", "какая", "какой", "которого",
		"которые", "кто", "куда", "ли", "между", "меня", "мне", "мой", "моя", "мы", "на",
		"над", "надо", "нас", "не", "него", "нее", "неё", "ней", "нет", "ни", "нибудь", "ним",
		"них", "ничего", "но", "ну", "о", "об", "он", "она", "они", "от", "перед", "по", "под",
		"после", "потом", "при", "про", "раз", "с", "сам", "свое", "своё", "свою", "себе",
		"себя", "со", "так", "такой", "там", "тебя", "тем", "то", "того", "том", "тот", "три",
		"тут", "ты", "у", "уж", "уже", "хоть", "чего", "чем", "через", "что", "чтоб", "чтобы",
		"чуть", "эти", "этого", "этой", "этом", "этот", "эту", "я",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
