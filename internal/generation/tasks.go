package generation

type Task string

const (
	TaskBullets            Task = "bullets"
	TaskResume             Task = "resume"
	TaskCoverLetter        Task = "cover-letter"
	TaskInterviewQuestions Task = "interview-questions"
	TaskSalaryInsights     Task = "salary-insights"
	TaskCompanyInsights    Task = "company-insights"
)

type taskSpec struct {
	instruction string
	json        bool
}

var taskSpecs = map[Task]taskSpec{
	TaskBullets: {
		instruction: `You are an expert resume writer. Read the job description and write exactly three ` +
			`concise, achievement-oriented resume bullet points that match its requirements. ` +
			`Return only the bullets, one per line, each starting with "- ".`,
	},
	TaskResume: {
		instruction: `You are an expert resume writer. Using the job description, draft a one-page resume ` +
			`outline tailored to the role: a short professional summary, a skills section and three ` +
			`experience entries with bullet points. Use plain text with clear section headings.`,
	},
	TaskCoverLetter: {
		instruction: `You are a career coach. Write a professional cover letter of at most four paragraphs ` +
			`for the position described. Address the key requirements and keep a confident, friendly tone. ` +
			`Do not invent a company address or a date.`,
	},
	TaskInterviewQuestions: {
		instruction: `You are a hiring manager. Produce interview preparation material for the job description. ` +
			`Respond with a JSON array of 8 objects with the fields "question", "category" ` +
			`(one of "technical", "behavioral", "role-specific") and "tips".`,
		json: true,
	},
	TaskSalaryInsights: {
		instruction: `You are a compensation analyst. Estimate the market salary for the job description. ` +
			`Respond with a JSON object with the fields "currency", "low", "median", "high" (numbers, yearly), ` +
			`"factors" (array of strings) and "negotiationTips" (array of strings).`,
		json: true,
	},
	TaskCompanyInsights: {
		instruction: `You are a career researcher. From the job description, infer what the company values. ` +
			`Respond with a JSON object with the fields "summary", "culture" (array of strings), ` +
			`"likelyChallenges" (array of strings) and "questionsToAsk" (array of strings).`,
		json: true,
	},
}

// taskOrder is the listing order for GET /api/generate.
var taskOrder = []Task{
	TaskBullets,
	TaskResume,
	TaskCoverLetter,
	TaskInterviewQuestions,
	TaskSalaryInsights,
	TaskCompanyInsights,
}

func ParseTask(name string) (Task, bool) {
	t := Task(name)
	_, ok := taskSpecs[t]
	return t, ok
}

func Tasks() []Task {
	out := make([]Task, len(taskOrder))
	copy(out, taskOrder)
	return out
}

func (t Task) ReturnsJSON() bool {
	return taskSpecs[t].json
}
