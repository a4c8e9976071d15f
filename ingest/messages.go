package ingest

import (
	"os"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Message keys double as the English text.
const (
	msgStarting         = "eelog-ingest %s starting"
	msgOpeningDB        = "opening database connection..."
	msgDBConnected      = "database connection established"
	msgDBConnectFailed  = "failed to connect to the database: %v"
	msgDBClosed         = "database connection closed"
	msgLogClosed        = "log file closed"
	msgProvisioning     = "creating %s, %s and %s..."
	msgProvisioned      = "schema created"
	msgProvisionFailed  = "schema creation failed: %v"
	msgPendingFiles     = "files to be processed: %v"
	msgMissingFile      = "registered file not found on disk: %s"
	msgProcessingFile   = "processing file: %s"
	msgConverterOutput  = "converter diagnostics: %s"
	msgConverterExit    = "converter exited with error (ignored): %v"
	msgConverted        = "converted in %s"
	msgConverterFailed  = "conversion failed: %v"
	msgRecordSkipped    = "record skipped (%s): %v"
	msgExtractionFailed = "event node %d skipped: %v"
	msgFileFailed       = "file %s not ingested: %v"
	msgFileMoved        = "file moved to %s"
	msgMoveFailed       = "could not move %s to the error dir: %v"
	msgInserted         = "insert finished in %s: %d inserted, %d skipped"
	msgRunDone          = "run finished in %s: %d files ingested, %d failed, %d records inserted, %d skipped"
	msgRunFailed        = "could not list the files to process: %v"
)

var supportedLanguages = []language.Tag{
	language.English,
	language.BrazilianPortuguese,
}

var languageMatcher = language.NewMatcher(supportedLanguages)

func init() {
	pt := language.BrazilianPortuguese
	for key, text := range map[string]string{
		msgStarting:         "eelog-ingest %s iniciando",
		msgOpeningDB:        "Abrindo conexão com o banco ...",
		msgDBConnected:      "Conexão estabelecida com sucesso!",
		msgDBConnectFailed:  "Erro ao conectar ao banco: %v",
		msgDBClosed:         "Conexão do Banco de Dados finalizada com sucesso!",
		msgLogClosed:        "Arquivo Log finalizado com sucesso!",
		msgProvisioning:     "Criando %s, %s e %s....",
		msgProvisioned:      "Criado com sucesso!",
		msgProvisionFailed:  "Falha ao criar o esquema: %v",
		msgPendingFiles:     "Serão processados os arquivos: %v",
		msgMissingFile:      "Arquivo registrado não encontrado no diretório: %s",
		msgProcessingFile:   "Processando o arquivo: %s",
		msgConverterOutput:  "Diagnóstico do conversor: %s",
		msgConverterExit:    "Conversor terminou com erro (ignorado): %v",
		msgConverted:        "Convertido em: %s",
		msgConverterFailed:  "Falha na conversão: %v",
		msgRecordSkipped:    "Registro ignorado (%s): %v",
		msgExtractionFailed: "Nó de evento %d ignorado: %v",
		msgFileFailed:       "Arquivo %s não inserido: %v",
		msgFileMoved:        "Arquivo movido para %s",
		msgMoveFailed:       "Não foi possível mover %s para o diretório de erros: %v",
		msgInserted:         "Insert concluído em: %s (%d inseridos, %d ignorados)",
		msgRunDone:          "Execução concluída em %s: %d arquivos inseridos, %d com falha, %d registros inseridos, %d ignorados",
		msgRunFailed:        "Não foi possível listar os arquivos a processar: %v",
	} {
		_ = message.SetString(pt, key, text)
	}
}

// NewPrinter returns a message printer for lang, falling back to the LANG
// environment variable and then English. POSIX forms like "pt_BR.UTF-8" are
// accepted.
func NewPrinter(lang string) *message.Printer {
	if strings.TrimSpace(lang) == "" {
		lang = os.Getenv("LANG")
	}
	return message.NewPrinter(MatchLanguage(lang))
}

// MatchLanguage maps a locale string onto a supported language.
func MatchLanguage(lang string) language.Tag {
	lang = strings.TrimSpace(lang)
	if i := strings.IndexAny(lang, ".@"); i >= 0 {
		lang = lang[:i]
	}
	lang = strings.ReplaceAll(lang, "_", "-")
	if lang == "" || strings.EqualFold(lang, "C") || strings.EqualFold(lang, "POSIX") {
		return language.English
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return language.English
	}
	_, idx, conf := languageMatcher.Match(tag)
	if conf == language.No {
		return language.English
	}
	return supportedLanguages[idx]
}
