package summary

const (
	DefaultSystemPrompt = "Sei un assistente che crea riassunti brevi, chiari e diretti. " +
		"Evita di essere vago e fornisci risposte concrete. Puoi anche citare direttamente qualche messaggio. " +
		"Inoltre non essere rigido, mantieni un tono umoristico. " +
		"Riporta brevemente le opinioni di ciascun partecipante alla discussione, indicandone il nome."

	userPrompt = "Riassumi questa conversazione in modo conciso e preciso:\n\n%s"

	// Header prefixes every delivered summary, including error echoes.
	Header = "DI CHE COSA SI E' PARLATO..:\n"

	NothingToSummarize = "Mi dispiace, nessun ascoltatore ha chiamato per lasciare un messaggio."

	errorPrefix = "Errore: "
)
