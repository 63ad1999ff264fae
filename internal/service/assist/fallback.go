package assist

import "strings"

// canned is a local answer used whenever the language model is unavailable
type canned struct {
	keywords   []string
	response   string
	disclaimer string
}

// matches reports whether text mentions any keyword. An entry with no
// keywords matches everything.
func (c canned) matches(text string) bool {
	if len(c.keywords) == 0 {
		return true
	}
	for _, k := range c.keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

var firstAidAnswers = []canned{
	{
		keywords: []string{"burn"},
		response: "For a %s, follow these steps:\n\n" +
			"1. Remove the person from the heat source to stop the burning.\n" +
			"2. Cool the burn with cool (not cold) running water for 10-15 minutes.\n" +
			"3. Remove jewelry or tight items from the burned area.\n" +
			"4. Cover the burn with a sterile, non-adhesive bandage or clean cloth.\n" +
			"5. Take over-the-counter pain relievers if needed.\n" +
			"6. Seek medical attention for severe burns or if the burn affects a large area.",
		disclaimer: "For serious burns, seek immediate medical attention.",
	},
	{
		keywords: []string{"cut", "bleeding"},
		response: "For %s, follow these steps:\n\n" +
			"1. Apply direct pressure to the wound using a clean cloth or bandage.\n" +
			"2. If possible, elevate the wounded area above the heart.\n" +
			"3. Clean the wound gently with mild soap and water once bleeding slows.\n" +
			"4. Apply antibiotic ointment and cover with a sterile bandage.\n" +
			"5. Seek medical attention for deep cuts, puncture wounds, or if bleeding doesn't stop after 15 minutes of pressure.",
		disclaimer: "For severe bleeding, call emergency services immediately.",
	},
	{
		keywords: []string{"chok", "heimlich"},
		response: "For choking, follow these steps:\n\n" +
			"1. Encourage the person to cough forcefully if they can.\n" +
			"2. If they cannot cough, speak, or breathe, stand behind them and wrap your arms around their waist.\n" +
			"3. Make a fist with one hand and place it thumb-side against their abdomen, just above the navel.\n" +
			"4. Grasp your fist with your other hand and pull inward and upward in quick, separate thrusts.\n" +
			"5. Repeat until the object is dislodged or emergency services arrive.",
		disclaimer: "Call emergency services immediately if the person becomes unconscious.",
	},
	{
		keywords: []string{"frost", "freezing"},
		response: "For frostbite or freezing injuries, follow these steps:\n\n" +
			"1. Move to a warm location and remove wet or tight clothing.\n" +
			"2. Immerse the affected area in warm (not hot) water, around 104-108°F (40-42°C).\n" +
			"3. DO NOT rub or massage the area as this can cause more damage.\n" +
			"4. DO NOT use direct heat like heating pads or fire.\n" +
			"5. Wrap the area in dry, sterile bandages, separating affected fingers or toes.\n" +
			"6. Seek medical attention as soon as possible.",
		disclaimer: "Always seek medical attention for frostbite, as proper treatment is essential to prevent permanent damage.",
	},
	{
		response: "For %s, follow these general first aid steps:\n\n" +
			"1. Stay calm and ensure the scene is safe.\n" +
			"2. Assess the situation and the person's condition.\n" +
			"3. Call emergency services if the situation is serious.\n" +
			"4. If the person is conscious, get consent before providing care.\n" +
			"5. Use appropriate first aid measures for the specific situation.\n" +
			"6. Monitor the person until help arrives.",
		disclaimer: "This is general advice. For serious emergencies, always call emergency services immediately.",
	},
}

var symptomAnswers = []canned{
	{
		// fever alone is not enough; see matchSymptoms
		keywords: []string{"cough", "sore throat"},
		response: "Your symptoms (%s) might indicate a respiratory infection such as a cold, flu, or COVID-19. Common differences:\n\n" +
			"- Cold: Gradual onset, mild symptoms, rarely causes fever\n" +
			"- Flu: Sudden onset, higher fever, body aches, fatigue\n" +
			"- COVID-19: May include loss of taste/smell, shortness of breath\n\n" +
			"Recommendations:\n" +
			"1. Rest and stay hydrated\n" +
			"2. Take over-the-counter fever reducers if needed\n" +
			"3. Monitor symptoms for worsening\n" +
			"4. Consider testing for COVID-19\n" +
			"5. Seek medical attention if you develop difficulty breathing, persistent chest pain, confusion, or bluish lips or face.",
		disclaimer: "This is not a diagnosis. Please consult a healthcare provider for proper evaluation.",
	},
	{
		keywords: []string{"headache"},
		response: "Your headache symptoms (%s) could be related to several conditions:\n\n" +
			"- Tension headache: Usually feels like pressure or tightness around the head\n" +
			"- Migraine: Often one-sided, pulsating, with sensitivity to light/sound\n" +
			"- Cluster headache: Severe pain around one eye\n" +
			"- Sinus headache: Pain and pressure around sinuses, often with congestion\n\n" +
			"Possible triggers include stress, dehydration, eye strain, or lack of sleep.\n\n" +
			"Recommendations:\n" +
			"1. Rest in a quiet, dark room\n" +
			"2. Stay hydrated\n" +
			"3. Consider over-the-counter pain relievers\n" +
			"4. Apply cool compress to your forehead\n" +
			"5. Manage stress through relaxation techniques\n\n" +
			"Seek immediate medical attention if your headache is sudden and severe, follows a head injury, or is accompanied by fever, stiff neck, confusion, seizures, double vision, weakness, numbness, or difficulty speaking.",
		disclaimer: "This information is not a diagnosis. Please consult a healthcare provider if headaches are severe or persistent.",
	},
	{
		keywords: []string{"rash", "skin"},
		response: "Your skin symptoms (%s) could be caused by various conditions:\n\n" +
			"- Contact dermatitis: Reaction to an irritant or allergen\n" +
			"- Eczema: Dry, itchy, inflamed skin\n" +
			"- Hives: Raised, itchy welts\n" +
			"- Fungal infection: Often red, scaly, and itchy\n" +
			"- Viral rash: Associated with a viral infection\n\n" +
			"Recommendations:\n" +
			"1. Avoid scratching the affected area\n" +
			"2. Use mild, fragrance-free soap and moisturizers\n" +
			"3. Apply cool compresses for itching\n" +
			"4. Consider over-the-counter hydrocortisone cream\n" +
			"5. Take an antihistamine if itching is severe\n\n" +
			"Seek medical attention if the rash is widespread, painful, blistering, or accompanied by fever, swelling of the face/throat, or difficulty breathing.",
		disclaimer: "This information is not a diagnosis. Please consult a healthcare provider for proper evaluation of skin conditions.",
	},
	{
		response: "Based on your symptoms (%s), it's difficult to provide specific information without more details. Common causes of general discomfort include:\n\n" +
			"- Viral or bacterial infections\n" +
			"- Stress and anxiety\n" +
			"- Lack of sleep\n" +
			"- Dehydration\n" +
			"- Nutritional deficiencies\n" +
			"- Medication side effects\n\n" +
			"General recommendations:\n" +
			"1. Rest and ensure adequate sleep\n" +
			"2. Stay hydrated\n" +
			"3. Maintain a balanced diet\n" +
			"4. Manage stress through relaxation techniques\n" +
			"5. Consider over-the-counter remedies appropriate for your symptoms\n\n" +
			"If symptoms persist for more than a few days, worsen, or are accompanied by high fever, severe pain, difficulty breathing, chest pain, or confusion, please consult a healthcare provider.",
		disclaimer: "This is not a diagnosis. Always consult a medical professional for proper evaluation of your symptoms.",
	},
}

const reportDisclaimer = "This is general information. Please discuss your specific results with your healthcare provider."

var reportAnswers = []canned{
	{
		keywords: []string{"cholesterol", "lipid"},
		response: "Regarding your lipid/cholesterol report:\n\n" +
			"Key measurements and their typical healthy ranges:\n" +
			"- Total Cholesterol: Below 200 mg/dL is desirable\n" +
			"- LDL (\"bad\") Cholesterol: Below 100 mg/dL is optimal\n" +
			"- HDL (\"good\") Cholesterol: Above 60 mg/dL is considered protective\n" +
			"- Triglycerides: Below 150 mg/dL is normal\n\n" +
			"If your levels are outside these ranges, your doctor might recommend:\n" +
			"1. Dietary changes (reducing saturated fats, increasing fiber)\n" +
			"2. Regular physical activity\n" +
			"3. Weight management\n" +
			"4. Medication in some cases\n\n" +
			"Regular monitoring is important for heart health.",
		disclaimer: reportDisclaimer,
	},
	{
		keywords: []string{"blood sugar", "glucose", "a1c"},
		response: "Regarding your blood glucose/diabetes-related report:\n\n" +
			"Key measurements and their typical healthy ranges:\n" +
			"- Fasting Blood Glucose: 70-99 mg/dL is normal\n" +
			"- Hemoglobin A1C: Below 5.7% is normal\n" +
			"- Random Blood Glucose: Below 140 mg/dL is normal\n\n" +
			"If your levels are elevated:\n" +
			"- Prediabetes: Fasting glucose 100-125 mg/dL or A1C 5.7-6.4%\n" +
			"- Diabetes: Fasting glucose above 126 mg/dL or A1C 6.5% or higher\n\n" +
			"Management typically involves:\n" +
			"1. Dietary changes\n" +
			"2. Regular physical activity\n" +
			"3. Weight management\n" +
			"4. Medication if prescribed\n" +
			"5. Regular monitoring",
		disclaimer: reportDisclaimer,
	},
	{
		keywords: []string{"liver", "alt", "ast"},
		response: "Regarding your liver function tests:\n\n" +
			"Common liver enzymes and their normal ranges:\n" +
			"- ALT (Alanine Transaminase): 7-56 U/L\n" +
			"- AST (Aspartate Transaminase): 5-40 U/L\n" +
			"- ALP (Alkaline Phosphatase): 44-147 U/L\n" +
			"- Bilirubin: 0.1-1.2 mg/dL\n\n" +
			"Elevated liver enzymes can indicate:\n" +
			"- Medication effects\n" +
			"- Alcohol consumption\n" +
			"- Fatty liver disease\n" +
			"- Viral hepatitis\n" +
			"- Other liver conditions\n\n" +
			"If your levels are elevated, your doctor might recommend:\n" +
			"1. Additional testing\n" +
			"2. Dietary changes\n" +
			"3. Reducing alcohol intake\n" +
			"4. Medication adjustments\n" +
			"5. Treatment for any underlying condition",
		disclaimer: reportDisclaimer,
	},
	{
		response: "Regarding your health report:\n\n" +
			"Medical reports can contain many measurements and technical terms. Without more specific details about which test results you're curious about, I can provide some general guidance:\n\n" +
			"1. Look for values marked as \"high,\" \"low,\" or outside the reference range.\n\n" +
			"2. The reference range is typically shown next to your result, indicating what's considered normal.\n\n" +
			"3. Minor deviations from the reference range may not be clinically significant.\n\n" +
			"4. Test results should be interpreted in the context of your overall health, symptoms, and medical history.\n\n" +
			"5. Your healthcare provider is the best person to explain the significance of your specific results.\n\n" +
			"If you'd like more specific information, please mention the particular test or values you're interested in.",
		disclaimer: "This is general information. Always review your test results with a qualified healthcare provider.",
	},
}

// general questions are routed to one of the tables by what they mention
var (
	generalSymptomWords = []string{"symptom", "fever", "headache", "pain"}
	generalReportWords  = []string{"report", "test", "results"}
)

func pick(table []canned, lower string) canned {
	for _, c := range table {
		if c.matches(lower) {
			return c
		}
	}
	return table[len(table)-1]
}

func matchSymptoms(lower string) canned {
	// the respiratory answer needs fever together with cough or sore throat
	if !strings.Contains(lower, "fever") {
		return pick(symptomAnswers[1:], lower)
	}
	return pick(symptomAnswers, lower)
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// fallbackFor returns the canned answer for text in category, with the
// user's text substituted where the answer quotes it.
func fallbackFor(category Category, text string) (string, string) {
	lower := strings.ToLower(text)

	var c canned
	switch category {
	case CategoryFirstAid:
		c = pick(firstAidAnswers, lower)
	case CategorySymptoms:
		c = matchSymptoms(lower)
	case CategoryReport:
		c = pick(reportAnswers, lower)
	default:
		switch {
		case containsAny(lower, generalSymptomWords):
			c = matchSymptoms(lower)
		case containsAny(lower, generalReportWords):
			c = pick(reportAnswers, lower)
		default:
			c = pick(firstAidAnswers, lower)
		}
	}
	return render(c.response, text), c.disclaimer
}

// render fills the single %s placeholder, if any, with text verbatim
func render(template, text string) string {
	return strings.Replace(template, "%s", text, 1)
}
