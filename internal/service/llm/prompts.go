package llm

// FallbackSystemPrompt is used when neither the agent config nor the
// built-in templates provide a prompt.
const FallbackSystemPrompt = "Você é um assistente jurídico."

var builtinPrompts = map[string]string{
	"prazos":     "Extraia numero_processo, partes, tipo_ato, prazo_dias_uteis, data_publicacao (YYYY-MM-DD), prazo_final_estimado (YYYY-MM-DD), checklist[]. Retorne JSON válido.",
	"pesquisa":   "Relatório de jurisprudência (últimos 12 meses): ementa, nº, data, link oficial, fundamentos, divergências. Formato: Markdown.",
	"peca":       "Minuta de peça com Fatos, Fundamentos (com referências), Pedidos, Anexos e ‘Pontos para validação humana’. Formato: Markdown.",
	"contrato":   "Comparação entre versões; listar mudanças, classificar risco (alto/médio/baixo), sugerir redações; incluir ‘Matriz de Risco’ tabelada. Formato: Markdown.",
	"traducao":   "Explicar documento para leigo, com precisão e próximos passos, sem prometer resultado. Formato: Markdown.",
	"evidencias": "Identificar dados sensíveis (CPF, RG, endereço, dados médicos); checklist de redaction + roteiro de custódia (Bates). Formato: Markdown.",
	"audiencia":  "Resumo estratégico (forças x fraquezas), 10 perguntas prováveis e respostas sugeridas. Formato: Markdown.",
}

// SystemPrompt picks the prompt for an agent: the configured prompt wins,
// then the built-in template for the key, then FallbackSystemPrompt.
func SystemPrompt(agentKey string, configured *string) string {
	if configured != nil {
		return *configured
	}
	if p, ok := builtinPrompts[agentKey]; ok {
		return p
	}
	return FallbackSystemPrompt
}
