package platform

import (
	"fmt"
	"strings"
	"time"
)

const baseAnalystPrompt = `Você é um analista de dados avançado especializado em análise de métricas de mídias sociais.

Suas capacidades incluem:
1. Análise descritiva: Resumir dados históricos, identificar padrões e calcular métricas-chave.
2. Análise diagnóstica: Determinar por que certas tendências ocorreram, encontrando correlações e relações causais.
3. Análise preditiva: Usar dados históricos para prever métricas e tendências futuras.
4. Análise prescritiva: Recomendar ações específicas para melhorar o desempenho com base em insights de dados.

Sempre siga estas diretrizes:
- Comece entendendo a estrutura dos dados e as métricas-chave
- Forneça contexto para qualquer cálculo
- Inclua tanto insights de alto nível quanto observações detalhadas
- Ao fazer previsões, explique seu raciocínio e nível de confiança
- Priorize recomendações acionáveis que sejam específicas e realistas
- Compare sempre o desempenho atual com referências históricas
- Destaque padrões incomuns ou anomalias que exijam atenção

Você tem acesso a ferramentas para consultar e agregar o conjunto de dados.
NÃO crie visualizações ou gráficos. Concentre-se exclusivamente em análises numéricas e textuais.

IMPORTANTE: Todas as suas respostas DEVEM ser em português do Brasil.`

var metricGlossary = map[Platform]string{
	GoogleAnalytics: `Métricas importantes do Google Analytics:
- traffic_direct: Tráfego direto para o site
- search_volume: Volume de pesquisas relacionadas
- impressions: Impressões em resultados de pesquisa
- traffic_organic_search: Tráfego vindo de busca orgânica
- traffic_organic_social: Tráfego vindo de redes sociais`,
	Facebook: `Métricas importantes do Facebook:
- page_impressions: Total de impressões da página
- page_impressions_unique: Impressões únicas da página
- page_follows: Novos seguidores da página`,
	Instagram: `Métricas importantes do Instagram:
- reach: Alcance total de conteúdo
- views: Visualizações de conteúdo
- followers: Número de seguidores`,
}

// Instruction returns the instruction prefix a reasoning engine is bound to
// when it analyzes data from p.
func (p Platform) Instruction() string {
	return fmt.Sprintf("%s\n\nVocê está analisando dados da plataforma: %s.\n%s", baseAnalystPrompt, p, metricGlossary[p])
}

// Kind is the analysis flavor requested by the caller. Unrecognized names map
// to KindGeneric instead of failing.
type Kind int

const (
	KindGeneric Kind = iota
	KindDescriptive
	KindDiagnostic
	KindPredictive
	KindPrescriptive
)

var kindNames = map[string]Kind{
	"descriptive":  KindDescriptive,
	"descritiva":   KindDescriptive,
	"diagnostic":   KindDiagnostic,
	"diagnostica":  KindDiagnostic,
	"diagnóstica":  KindDiagnostic,
	"predictive":   KindPredictive,
	"preditiva":    KindPredictive,
	"prescriptive": KindPrescriptive,
	"prescritiva":  KindPrescriptive,
}

// ParseKind maps an analysis type name to its Kind. It never fails.
func ParseKind(name string) Kind {
	if k, ok := kindNames[strings.ToLower(strings.TrimSpace(name))]; ok {
		return k
	}
	return KindGeneric
}

func (k Kind) String() string {
	switch k {
	case KindDescriptive:
		return "descriptive"
	case KindDiagnostic:
		return "diagnostic"
	case KindPredictive:
		return "predictive"
	case KindPrescriptive:
		return "prescriptive"
	default:
		return "generic"
	}
}

// Query renders the analysis request for platform p. dateClause is the
// output of DateClause and is inserted right after the platform name.
func (k Kind) Query(p Platform, dateClause string) string {
	switch k {
	case KindDescriptive:
		return fmt.Sprintf("Forneça uma análise descritiva abrangente dos dados da plataforma %s%s. "+
			"Inclua métricas-chave, tendências e padrões que você observa. "+
			"Concentre-se no engajamento do usuário, taxas de conversão e métricas de crescimento.", p, dateClause)
	case KindDiagnostic:
		return fmt.Sprintf("Realize uma análise diagnóstica dos dados da plataforma %s%s. "+
			"Identifique possíveis causas para mudanças de desempenho, correlações entre métricas "+
			"e fatores que podem estar influenciando o comportamento do usuário.", p, dateClause)
	case KindPredictive:
		return fmt.Sprintf("Com base nos dados da plataforma %s%s, forneça uma análise preditiva sobre tendências futuras. "+
			"Use padrões históricos para prever métricas para os próximos 30 dias. "+
			"Identifique oportunidades potenciais e riscos.", p, dateClause)
	case KindPrescriptive:
		return fmt.Sprintf("Com base nos dados da plataforma %s%s, forneça recomendações prescritivas. "+
			"Sugira ações específicas para melhorar o desempenho, otimizar estratégias "+
			"e abordar quaisquer problemas identificados na análise.", p, dateClause)
	default:
		return fmt.Sprintf("Analise os dados da plataforma %s%s e forneça insights e recomendações.", p, dateClause)
	}
}

// DateLayout is the layout used for dates in prompts and request payloads.
const DateLayout = "2006-01-02"

// DateClause renders the human-readable period for a query. A zero time
// means the bound is absent.
func DateClause(start, end time.Time) string {
	switch {
	case !start.IsZero() && !end.IsZero():
		return fmt.Sprintf(" para o período de %s até %s", start.Format(DateLayout), end.Format(DateLayout))
	case !start.IsZero():
		return fmt.Sprintf(" a partir de %s", start.Format(DateLayout))
	case !end.IsZero():
		return fmt.Sprintf(" até %s", end.Format(DateLayout))
	default:
		return ""
	}
}
