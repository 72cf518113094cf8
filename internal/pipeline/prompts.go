package pipeline

import "strings"

// Prompt templates. Placeholders use {name} and are filled with render;
// a placeholder with no binding is left untouched so defects surface in
// logs instead of silently vanishing.

func render(template string, params map[string]string) string {
	pairs := make([]string, 0, len(params)*2)
	for key, value := range params {
		pairs = append(pairs, "{"+key+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

const queryToVQLPrompt = `You are an expert VQL developer. Generate a single VQL query that answers the user's question.

Today's date is {date}.

Here is the relevant schema:
<schema>
{schema}
</schema>

{vql_restrictions}

{custom_instructions}

Question: {query}

Think through the tables, joins and filters you need, then respond with exactly these tags:
<thoughts>your reasoning about how to answer the question</thoughts>
<vql>the VQL query</vql>
<conditions>any assumption the query depends on, or None</conditions>`

const answerViewPrompt = `You are a helpful data assistant. The user asked a question, a query was executed and you have the result.

Question: {question}

Query:
{sql_query}

Execution result:
{sql_response}

The query used these tables:
{tables_needed}

{custom_instructions}

Answer the question directly from the execution result. Do not mention the query unless the user asked about it. {response_format}

For example: {response_example}

Respond inside a single tag:
<final_answer>your answer</final_answer>`

const sqlCategoryPrompt = `You classify user questions against a data schema.

Schema:
<schema>
{schema}
</schema>

{custom_instructions}

Question: {instruction}

If the question can be answered with a SQL query over the schema, respond with <cat>SQL</cat> and annotate the question:
<query>restate the question precisely. Mark needed clauses with <groupby></groupby>, <orderby></orderby>, <having></having>, <dates></dates> or <arithmetic></arithmetic> markers, and list the needed tables as <table><name>table name</name><column>column</column></table> blocks.</query>
If the question is not answerable from the schema, respond with <cat>OTHER</cat>.`

const metadataCategoryPrompt = `You decide whether a user question asks about the structure of the data (what tables and columns exist, how they relate) rather than the data itself, and if so, you answer it.

Schema:
<schema>
{schema}
</schema>

{custom_instructions}

Question: {instruction}

If this is a question about the schema itself, respond:
<cat>METADATA</cat>
<response>the answer, based only on the schema above</response>
<related_question>a natural follow-up question</related_question>
<related_question>another follow-up question</related_question>

Otherwise respond with <cat>OTHER</cat>.`

const directMetadataCategoryPrompt = `Answer the user's question about the structure of the data using only the schema below.

Schema:
<schema>
{schema}
</schema>

{custom_instructions}

Question: {instruction}

Respond:
<response>the answer</response>
<related_question>a natural follow-up question</related_question>
<related_question>another follow-up question</related_question>`

const directSQLCategoryPrompt = `The user's question will be answered with a SQL query over the schema below. Annotate it for the query generator.

Schema:
<schema>
{schema}
</schema>

{custom_instructions}

Question: {instruction}

Respond:
<query>restate the question precisely. Mark needed clauses with <groupby></groupby>, <orderby></orderby>, <having></having>, <dates></dates> or <arithmetic></arithmetic> markers, and list the needed tables as <table><name>table name</name><column>column</column></table> blocks.</query>`

const relatedQuestionsPrompt = `Suggest three follow-up questions the user might ask next, answerable from the same schema.

Schema:
<schema>
{schema}
</schema>

Original question: {question}

Execution result:
{sql_response}

{custom_instructions}

Respond with exactly three tags:
<related_question>first question</related_question>
<related_question>second question</related_question>
<related_question>third question</related_question>`

const chartPrompt = `Generate a Vega-Lite v5 chart specification for the result of a data question.

Question: {instruction}

The full result set is stored at {data}; reference it as the data url.

Sample of the data:
{sample_data}

Plot requirements: {plot_details}

Respond with a single tag containing only valid JSON:
<chart>the Vega-Lite specification</chart>`

const fixLimitPrompt = `The following VQL query uses LIMIT or FETCH inside a subquery, which VQL does not allow. Rewrite it using ROW_NUMBER() OVER (...) so it returns the same rows. Change nothing else.

Question being answered: {question}

Schema:
<schema>
{schema}
</schema>

Query:
{query}

Respond with the rewritten query inside <vql></vql> tags.`

const fixOffsetPrompt = `The following VQL query uses OFFSET, which VQL does not allow. Rewrite it using ROW_NUMBER() OVER (...) so it returns the same rows. Change nothing else.

Question being answered: {question}

Schema:
<schema>
{schema}
</schema>

Query:
{query}

Respond with the rewritten query inside <vql></vql> tags.`

const queryFixerPrompt = `A VQL query failed to execute. Fix it.

Question being answered: {question}

The intent behind the query:
{query_explanation}

Schema:
<schema>
{schema}
</schema>

{vql_restrictions}

Query:
{query}

Error:
{query_error}

Respond with the corrected query inside <vql></vql> tags.`

const queryReviewerPrompt = `A VQL query executed without error but returned no rows. Review whether its filtering, grouping and joins actually match the question. Literal values are a common cause: compare them against the sample values in the schema.

Question: {question}

Schema:
<schema>
{schema}
</schema>

{vql_restrictions}

Query:
{query}

If the query is logically correct and the data is simply empty, respond with <vql>OK</vql>. Otherwise respond with a corrected query inside <vql></vql> tags.`
